package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Record is one raw dataset row.
type Record struct {
	Abstract   string `json:"abstract"`
	Categories string `json:"categories"`
}

// Source streams dataset records. Each stops early when fn returns false.
type Source interface {
	Name() string
	Each(ctx context.Context, fn func(Record) bool) error
}

// HubConfig configures a HubSource.
type HubConfig struct {
	BaseURL    string
	Dataset    string
	Config     string
	Split      string
	PageSize   int
	Token      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// HubSource pages rows from the Hugging Face datasets-server API.
type HubSource struct {
	cfg    HubConfig
	client *http.Client
	logger *zap.Logger
}

type rowsResponse struct {
	Rows []struct {
		RowIdx int    `json:"row_idx"`
		Row    Record `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// NewHubSource fills unset fields with the public endpoint defaults.
func NewHubSource(cfg HubConfig, logger *zap.Logger) *HubSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://datasets-server.huggingface.co"
	}
	if cfg.Config == "" {
		cfg.Config = "default"
	}
	if cfg.Split == "" {
		cfg.Split = "train"
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
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
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HubSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Name identifies the dataset.
func (h *HubSource) Name() string { return "hub:" + h.cfg.Dataset }

// Each walks the split page by page.
func (h *HubSource) Each(ctx context.Context, fn func(Record) bool) error {
	if h.cfg.Dataset == "" {
		return errors.New("hub source: dataset is required")
	}
	offset := 0
	for {
		page, err := h.fetchPage(ctx, offset)
		if err != nil {
			return err
		}
		if len(page.Rows) == 0 {
			return nil
		}
		for _, row := range page.Rows {
			if !fn(row.Row) {
				return nil
			}
		}
		offset += len(page.Rows)
		if page.NumRowsTotal > 0 && offset >= page.NumRowsTotal {
			return nil
		}
	}
}

func (h *HubSource) fetchPage(ctx context.Context, offset int) (*rowsResponse, error) {
	q := url.Values{}
	q.Set("dataset", h.cfg.Dataset)
	q.Set("config", h.cfg.Config)
	q.Set("split", h.cfg.Split)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(h.cfg.PageSize))
	endpoint := h.cfg.BaseURL + "/rows?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(h.cfg.RetryDelay, attempt-1)):
			}
		}
		page, retry, err := h.doFetch(ctx, endpoint)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
		h.logger.Warn("dataset page fetch failed",
			zap.Int("offset", offset),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, fmt.Errorf("fetch rows at offset %d: %w", offset, lastErr)
}

func (h *HubSource) doFetch(ctx context.Context, endpoint string) (*rowsResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	if h.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.Token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("datasets server: %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("datasets server: %s: %s", resp.Status, body)
	}
	var page rowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, true, fmt.Errorf("decode rows: %w", err)
	}
	return &page, false, nil
}

func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d > 5*time.Second || d <= 0 {
		d = 5 * time.Second
	}
	return d
}

// FileSource reads JSON lines from a local mirror of the dataset.
type FileSource struct {
	Path string
}

// Name identifies the file.
func (f *FileSource) Name() string { return "file:" + f.Path }

// Each decodes one record per non-empty line.
func (f *FileSource) Each(ctx context.Context, fn func(Record) bool) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("%s:%d: %w", f.Path, line, err)
		}
		if !fn(rec) {
			return nil
		}
	}
	return scanner.Err()
}
