package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCategory is returned for labels outside the catalog.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrNoSamples is returned when a source yields nothing usable.
	ErrNoSamples = errors.New("no samples collected")
)

// DefaultCategories is the reference label set.
var DefaultCategories = []string{"astro-ph", "cond-mat", "cs", "math", "physics"}

// Catalog is a fixed bijection between category names and dense ids.
// It is immutable after construction.
type Catalog struct {
	names []string
	ids   map[string]int
}

// NewCatalog builds a catalog; ids follow the order of names.
func NewCatalog(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return nil, errors.New("catalog needs at least one category")
	}
	c := &Catalog{
		names: make([]string, 0, len(names)),
		ids:   make(map[string]int, len(names)),
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("empty category name")
		}
		if _, dup := c.ids[name]; dup {
			return nil, fmt.Errorf("duplicate category %q", name)
		}
		c.ids[name] = len(c.names)
		c.names = append(c.names, name)
	}
	return c, nil
}

// ID returns the dense id for name.
func (c *Catalog) ID(name string) (int, error) {
	id, ok := c.ids[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
	}
	return id, nil
}

// Name returns the category name for id.
func (c *Catalog) Name(id int) (string, error) {
	if id < 0 || id >= len(c.names) {
		return "", fmt.Errorf("%w: id %d", ErrUnknownCategory, id)
	}
	return c.names[id], nil
}

// Contains reports whether name belongs to the catalog.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.ids[name]
	return ok
}

// Names returns a copy of the category names in id order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of categories.
func (c *Catalog) Len() int { return len(c.names) }
