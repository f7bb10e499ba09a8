// Package embed produces dense sentence embeddings.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Encoder maps texts to fixed-size dense vectors.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelID() string
	Close() error
}

// Provider names.
const (
	ProviderONNX    = "onnx"
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// ErrDimensionMismatch is returned when a backend yields vectors of an unexpected size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Config selects and configures an encoder.
type Config struct {
	Provider  string
	ModelID   string
	Dimension int
	CacheSize int
	ONNX      OrtConfig
	OpenAI    OpenAIConfig
}

// New builds the configured encoder wrapped in an LRU cache.
func New(cfg Config) (Encoder, error) {
	var (
		enc Encoder
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderONNX, "":
		ort := cfg.ONNX
		ort.ModelID = cfg.ModelID
		ort.Dimension = cfg.Dimension
		enc, err = NewOrtEncoder(ort)
	case ProviderOpenAI:
		oa := cfg.OpenAI
		oa.Dimension = cfg.Dimension
		enc, err = NewOpenAIEncoder(oa)
	case ProviderHashing:
		enc = NewHashingEncoder(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize <= 0 {
		return enc, nil
	}
	return NewCachedEncoder(enc, cfg.CacheSize)
}

func checkDimension(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
