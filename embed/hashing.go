package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

var hashTokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// HashingEncoder is an offline encoder using signed feature hashing of word
// tokens. It needs no model files and is deterministic across processes.
type HashingEncoder struct {
	dim int
}

// NewHashingEncoder returns an encoder with the given output dimension.
func NewHashingEncoder(dim int) *HashingEncoder {
	if dim <= 0 {
		dim = 768
	}
	return &HashingEncoder{dim: dim}
}

func (h *HashingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float32, h.dim)
		for _, tok := range hashTokenPattern.FindAllString(strings.ToLower(text), -1) {
			hasher := fnv.New64a()
			_, _ = hasher.Write([]byte(tok))
			sum := hasher.Sum64()
			idx := int(sum % uint64(h.dim))
			if sum>>63 == 1 {
				vec[idx]--
			} else {
				vec[idx]++
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (h *HashingEncoder) Dimension() int  { return h.dim }
func (h *HashingEncoder) ModelID() string { return fmt.Sprintf("hashing-%d", h.dim) }
func (h *HashingEncoder) Close() error    { return nil }
