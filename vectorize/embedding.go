package vectorize

import (
	"context"
	"fmt"
	"strings"

	"pubclass/embed"
)

// EmbeddingOptions controls how texts are handed to the encoder.
type EmbeddingOptions struct {
	// Prefix is prepended to every trimmed input ("query: " for e5 models).
	Prefix    string
	Normalize bool
	BatchSize int
}

// EmbeddingVectorizer wraps a pre-trained encoder; it needs no fitting.
type EmbeddingVectorizer struct {
	enc  embed.Encoder
	opts EmbeddingOptions
}

func NewEmbeddingVectorizer(enc embed.Encoder, opts EmbeddingOptions) *EmbeddingVectorizer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	return &EmbeddingVectorizer{enc: enc, opts: opts}
}

func (e *EmbeddingVectorizer) format(text string) string {
	return e.opts.Prefix + strings.TrimSpace(text)
}

// TransformBatch embeds texts in chunks of BatchSize.
func (e *EmbeddingVectorizer) TransformBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(texts))
		inputs := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			inputs = append(inputs, e.format(t))
		}
		vecs, err := e.enc.Encode(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("encode batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(inputs) {
			return nil, fmt.Errorf("encoder returned %d vectors for %d texts", len(vecs), len(inputs))
		}
		for _, v := range vecs {
			if len(v) != e.enc.Dimension() {
				return nil, fmt.Errorf("%w: got %d, want %d", embed.ErrDimensionMismatch, len(v), e.enc.Dimension())
			}
			row := make([]float64, len(v))
			for i, x := range v {
				row[i] = float64(x)
			}
			if e.opts.Normalize {
				l2Normalize(row)
			}
			out = append(out, row)
		}
	}
	return out, nil
}

func (e *EmbeddingVectorizer) Transform(ctx context.Context, text string) ([]float64, error) {
	rows, err := e.TransformBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (e *EmbeddingVectorizer) Dimension() int { return e.enc.Dimension() }
