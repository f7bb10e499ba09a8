package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	APIKeyEnv  string
	Model      string
	Dimension  int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIEncoder calls a remote embeddings API.
type OpenAIEncoder struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIEncoder resolves the API key and builds the client.
func NewOpenAIEncoder(cfg OpenAIConfig) (*OpenAIEncoder, error) {
	if cfg.APIKey == "" {
		if cfg.APIKeyEnv == "" {
			cfg.APIKeyEnv = "OPENAI_API_KEY"
		}
		cfg.APIKey = os.Getenv(cfg.APIKeyEnv)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai encoder: missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	conf.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAIEncoder{client: openai.NewClientWithConfig(conf), cfg: cfg}, nil
}

// Encode sends texts in batches and restores response order by index.
func (o *OpenAIEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.cfg.BatchSize {
		end := min(start+o.cfg.BatchSize, len(texts))
		batch, err := o.encodeBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (o *OpenAIEncoder) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.cfg.Model),
		Dimensions: o.cfg.Dimension,
	}
	var (
		resp openai.EmbeddingResponse
		err  error
	)
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.cfg.RetryDelay << (attempt - 1)):
			}
		}
		resp, err = o.client.CreateEmbeddings(ctx, req)
		if err == nil || !retryable(err) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("create embeddings: index %d out of range", item.Index)
		}
		if err := checkDimension(item.Embedding, o.cfg.Dimension); err != nil {
			return nil, err
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func (o *OpenAIEncoder) Dimension() int  { return o.cfg.Dimension }
func (o *OpenAIEncoder) ModelID() string { return o.cfg.Model }
func (o *OpenAIEncoder) Close() error    { return nil }
