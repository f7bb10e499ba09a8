package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEncoder struct {
	calls atomic.Int32
	texts atomic.Int32
}

func (c *countingEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (c *countingEncoder) Dimension() int  { return 2 }
func (c *countingEncoder) ModelID() string { return "counting" }
func (c *countingEncoder) Close() error    { return nil }

func TestCachedEncoderServesHits(t *testing.T) {
	inner := &countingEncoder{}
	enc, err := NewCachedEncoder(inner, 16)
	require.NoError(t, err)

	first, err := enc.Encode(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, first[0])
	assert.Equal(t, 2, enc.Len())

	second, err := enc.Encode(context.Background(), []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 1}, second[0])
	assert.Equal(t, []float32{3, 1}, second[1])
	assert.Equal(t, []float32{1, 1}, second[2])

	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, int32(3), inner.texts.Load())

	// Cached vectors are copies.
	second[0][0] = 99
	again, err := enc.Encode(context.Background(), []string{"bb"})
	require.NoError(t, err)
	assert.Equal(t, float32(2), again[0][0])
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestHashingEncoderDeterministic(t *testing.T) {
	enc := NewHashingEncoder(64)
	assert.Equal(t, 64, enc.Dimension())
	assert.Equal(t, "hashing-64", enc.ModelID())

	a, err := enc.Encode(context.Background(), []string{"Quantum field theory", "quantum FIELD theory"})
	require.NoError(t, err)
	require.Len(t, a[0], 64)
	assert.Equal(t, a[0], a[1])

	var nonZero int
	for _, v := range a[0] {
		if v != 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, 0)

	empty, err := enc.Encode(context.Background(), []string{""})
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 64), empty[0])
}

func TestHashingEncoderHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashingEncoder(8).Encode(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMeanPool(t *testing.T) {
	hidden := []float32{
		1, 2,
		3, 4,
		100, 100,
	}
	out, err := meanPool(hidden, []int64{1, 1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3}, out)

	_, err = meanPool(hidden, []int64{1, 1}, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestTruncateKeepsFinalToken(t *testing.T) {
	ids := []int64{0, 10, 11, 12, 13, 2}
	assert.Equal(t, []int64{0, 10, 11, 2}, truncate(ids, 4))
	assert.Equal(t, ids, truncate(ids, 10))
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "word2vec"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word2vec")
}

func TestNewHashingWithCache(t *testing.T) {
	enc, err := New(Config{Provider: ProviderHashing, Dimension: 32, CacheSize: 8})
	require.NoError(t, err)
	_, ok := enc.(*CachedEncoder)
	assert.True(t, ok)
	assert.Equal(t, 32, enc.Dimension())
	require.NoError(t, enc.Close())
}

func TestOrtEncoderRequiresPaths(t *testing.T) {
	_, err := NewOrtEncoder(OrtConfig{})
	assert.Error(t, err)
}

func embeddingServer(t *testing.T, failures int32, dim int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if n <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, 0, len(req.Input))
		// Reverse order so the client has to sort by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			vec[0] = float32(len(req.Input[i]))
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "test"})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOpenAIEncoderOrdersByIndex(t *testing.T) {
	srv, _ := embeddingServer(t, 0, 4)
	enc, err := NewOpenAIEncoder(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "test", Model: "test", Dimension: 4, BatchSize: 2})
	require.NoError(t, err)

	out, err := enc.Encode(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, float32(1), out[0][0])
	assert.Equal(t, float32(3), out[1][0])
	assert.Equal(t, float32(2), out[2][0])
}

func TestOpenAIEncoderRetriesServerErrors(t *testing.T) {
	srv, calls := embeddingServer(t, 1, 4)
	enc, err := NewOpenAIEncoder(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "test", Dimension: 4, MaxRetries: 2, RetryDelay: 1})
	require.NoError(t, err)

	out, err := enc.Encode(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIEncoderDimensionMismatch(t *testing.T) {
	srv, _ := embeddingServer(t, 0, 3)
	enc, err := NewOpenAIEncoder(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "test", Dimension: 4})
	require.NoError(t, err)

	_, err = enc.Encode(context.Background(), []string{"hello"})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestOpenAIEncoderMissingKey(t *testing.T) {
	t.Setenv("PUBCLASS_TEST_EMPTY_KEY", "")
	_, err := NewOpenAIEncoder(OpenAIConfig{APIKeyEnv: "PUBCLASS_TEST_EMPTY_KEY"})
	assert.Error(t, err)
}
