package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Sample is a normalized text with its category id.
type Sample struct {
	Text  string
	Label int
}

// CategoryOf returns the top-level category of a single-category record.
// Multi-category records and categories outside the catalog are rejected.
func CategoryOf(rec Record, catalog *Catalog) (string, bool) {
	if len(strings.Split(rec.Categories, " ")) != 1 {
		return "", false
	}
	category := strings.Split(strings.TrimSpace(rec.Categories), ".")[0]
	if !catalog.Contains(category) {
		return "", false
	}
	return category, true
}

// Collect reads up to limit accepted records from src.
func Collect(ctx context.Context, src Source, catalog *Catalog, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("sample limit must be positive, got %d", limit)
	}
	records := make([]Record, 0, limit)
	err := src.Each(ctx, func(rec Record) bool {
		if _, ok := CategoryOf(rec, catalog); !ok {
			return true
		}
		records = append(records, rec)
		return len(records) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w from %s", ErrNoSamples, src.Name())
	}
	return records, nil
}

// Prepare normalizes abstracts and resolves category ids.
func Prepare(records []Record, catalog *Catalog) ([]Sample, error) {
	samples := make([]Sample, 0, len(records))
	for _, rec := range records {
		category, ok := CategoryOf(rec, catalog)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, rec.Categories)
		}
		id, err := catalog.ID(category)
		if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{Text: Normalize(rec.Abstract), Label: id})
	}
	return samples, nil
}

// Split separates texts and labels.
func Split(samples []Sample) ([]string, []int) {
	texts := make([]string, len(samples))
	labels := make([]int, len(samples))
	for i, s := range samples {
		texts[i] = s.Text
		labels[i] = s.Label
	}
	return texts, labels
}
