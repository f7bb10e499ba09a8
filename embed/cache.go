package embed

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEncoder memoizes vectors per (model, text).
type CachedEncoder struct {
	inner Encoder
	cache *lru.Cache[string, []float32]
}

// NewCachedEncoder wraps inner with an LRU cache of the given size.
func NewCachedEncoder(inner Encoder, size int) (*CachedEncoder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEncoder{inner: inner, cache: cache}, nil
}

// Encode serves hits from the cache and forwards misses in one batch.
func (c *CachedEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		keys[i] = c.cacheKey(text)
		if vec, ok := c.cache.Get(keys[i]); ok {
			out[i] = cloneVector(vec)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := c.inner.Encode(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, vec := range vecs {
		i := missingIdx[j]
		c.cache.Add(keys[i], cloneVector(vec))
		out[i] = vec
	}
	return out, nil
}

// Len reports the number of cached vectors.
func (c *CachedEncoder) Len() int { return c.cache.Len() }

func (c *CachedEncoder) Dimension() int  { return c.inner.Dimension() }
func (c *CachedEncoder) ModelID() string { return c.inner.ModelID() }

func (c *CachedEncoder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

func (c *CachedEncoder) cacheKey(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, c.inner.ModelID())
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
