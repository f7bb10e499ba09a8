// Package config loads the service configuration from YAML, a .env file and
// PUBCLASS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

const envPrefix = "PUBCLASS_"

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// DatasetConfig selects the corpus source. Source is "hub" or "file".
type DatasetConfig struct {
	Source     string        `yaml:"source"`
	Path       string        `yaml:"path"`
	BaseURL    string        `yaml:"base_url"`
	Name       string        `yaml:"name"`
	Config     string        `yaml:"config"`
	Split      string        `yaml:"split"`
	PageSize   int           `yaml:"page_size"`
	TokenEnv   string        `yaml:"token_env"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	SampleSize int           `yaml:"sample_size"`
}

type TrainingConfig struct {
	Seed           int64   `yaml:"seed"`
	TestRatio      float64 `yaml:"test_ratio"`
	Neighbors      int     `yaml:"neighbors"`
	MaxDepth       int     `yaml:"max_depth"`
	KMeansMaxIter  int     `yaml:"kmeans_max_iter"`
	AutoInitialize bool    `yaml:"auto_initialize"`
	Evaluate       bool    `yaml:"evaluate"`
}

type ONNXConfig struct {
	LibraryPath   string `yaml:"library_path"`
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	MaxSeqLen     int    `yaml:"max_seq_len"`
}

type OpenAIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type EmbeddingConfig struct {
	Provider  string       `yaml:"provider"`
	Model     string       `yaml:"model"`
	Dimension int          `yaml:"dimension"`
	Prefix    string       `yaml:"prefix"`
	Normalize bool         `yaml:"normalize"`
	BatchSize int          `yaml:"batch_size"`
	CacheSize int          `yaml:"cache_size"`
	ONNX      ONNXConfig   `yaml:"onnx"`
	OpenAI    OpenAIConfig `yaml:"openai"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the root configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Dataset    DatasetConfig   `yaml:"dataset"`
	Categories []string        `yaml:"categories"`
	Training   TrainingConfig  `yaml:"training"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
	Database   DatabaseConfig  `yaml:"database"`
	Log        LogConfig       `yaml:"log"`
	Metrics    MetricsConfig   `yaml:"metrics"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"http://localhost:3000", "http://frontend:3000"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   60 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Dataset: DatasetConfig{
			Source:     "hub",
			BaseURL:    "https://datasets-server.huggingface.co",
			Name:       "UniverseTBD/arxiv-abstracts-large",
			Config:     "default",
			Split:      "train",
			PageSize:   100,
			TokenEnv:   "HF_TOKEN",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryDelay: 500 * time.Millisecond,
			SampleSize: 1000,
		},
		Categories: []string{"astro-ph", "cond-mat", "cs", "math", "physics"},
		Training: TrainingConfig{
			Seed:           42,
			TestRatio:      0.2,
			Neighbors:      5,
			KMeansMaxIter:  300,
			AutoInitialize: true,
		},
		Embedding: EmbeddingConfig{
			Provider:  "onnx",
			Model:     "intfloat/multilingual-e5-base",
			Dimension: 768,
			Prefix:    "query: ",
			Normalize: true,
			BatchSize: 32,
			CacheSize: 4096,
			ONNX: ONNXConfig{
				ModelPath:     "models/multilingual-e5-base/model.onnx",
				TokenizerPath: "models/multilingual-e5-base/tokenizer.json",
				MaxSeqLen:     512,
			},
			OpenAI: OpenAIConfig{
				APIKeyEnv:  "OPENAI_API_KEY",
				Timeout:    30 * time.Second,
				MaxRetries: 3,
			},
		},
		Database: DatabaseConfig{Path: "data/pubclass.db"},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads path over the defaults, applies .env and environment
// overrides, then validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files, skipping ones that do not exist.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("SAMPLE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSAMPLE_SIZE: %w", envPrefix, err)
		}
		c.Dataset.SampleSize = n
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("DATASET_PATH"); ok {
		c.Dataset.Source = "file"
		c.Dataset.Path = v
	}
	if v, ok := lookup("DB_PATH"); ok {
		c.Database.Path = v
	}
	if v, ok := lookup("EMBEDDING_PROVIDER"); ok {
		c.Embedding.Provider = v
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// ApplyDefaults fills zero values left by a sparse file.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = d.Server.RequestTimeout
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Dataset.Source == "" {
		c.Dataset.Source = d.Dataset.Source
	}
	if c.Dataset.SampleSize == 0 {
		c.Dataset.SampleSize = d.Dataset.SampleSize
	}
	if len(c.Categories) == 0 {
		c.Categories = d.Categories
	}
	if c.Training.TestRatio == 0 {
		c.Training.TestRatio = d.Training.TestRatio
	}
	if c.Training.Neighbors == 0 {
		c.Training.Neighbors = d.Training.Neighbors
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = d.Embedding.Provider
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = d.Embedding.Dimension
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = d.Embedding.BatchSize
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Dataset.Source {
	case "hub":
		if c.Dataset.Name == "" {
			errs = append(errs, errors.New("dataset.name is required for the hub source"))
		}
	case "file":
		if c.Dataset.Path == "" {
			errs = append(errs, errors.New("dataset.path is required for the file source"))
		}
	default:
		errs = append(errs, fmt.Errorf("dataset.source %q must be hub or file", c.Dataset.Source))
	}
	if c.Dataset.SampleSize < 0 {
		errs = append(errs, fmt.Errorf("dataset.sample_size %d must be positive", c.Dataset.SampleSize))
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, name := range c.Categories {
		if name == "" || seen[name] {
			errs = append(errs, fmt.Errorf("categories: empty or duplicate entry %q", name))
		}
		seen[name] = true
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		errs = append(errs, fmt.Errorf("training.test_ratio %v must be in (0,1)", c.Training.TestRatio))
	}
	if c.Training.Neighbors < 0 {
		errs = append(errs, fmt.Errorf("training.neighbors %d must be positive", c.Training.Neighbors))
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "onnx", "openai", "hashing", "none":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q is not one of onnx, openai, hashing, none", c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension %d must be positive", c.Embedding.Dimension))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}
