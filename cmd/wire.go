package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pubclass/config"
	"pubclass/embed"
	phttp "pubclass/http"
	"pubclass/logger"
	"pubclass/ml"
	"pubclass/pipeline"
	"pubclass/service"
	"pubclass/vectorize"
)

// app is the configuration and logger shared by every command.
type app struct {
	configPath string
	cfg        *config.Config
	log        *zap.Logger
	level      zap.AtomicLevel
	logCloser  io.Closer
}

func loadApp(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, level, closer := logger.New(loggerConfig(cfg))
	return &app{configPath: path, cfg: cfg, log: log, level: level, logCloser: closer}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
	_ = a.logCloser.Close()
}

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
}

func newSource(cfg *config.Config, log *zap.Logger) pipeline.Source {
	if cfg.Dataset.Source == "file" {
		return &pipeline.FileSource{Path: cfg.Dataset.Path}
	}
	var token string
	if cfg.Dataset.TokenEnv != "" {
		token = os.Getenv(cfg.Dataset.TokenEnv)
	}
	return pipeline.NewHubSource(pipeline.HubConfig{
		BaseURL:    cfg.Dataset.BaseURL,
		Dataset:    cfg.Dataset.Name,
		Config:     cfg.Dataset.Config,
		Split:      cfg.Dataset.Split,
		PageSize:   cfg.Dataset.PageSize,
		Token:      token,
		Timeout:    cfg.Dataset.Timeout,
		MaxRetries: cfg.Dataset.MaxRetries,
		RetryDelay: cfg.Dataset.RetryDelay,
	}, log.Named("dataset"))
}

// newEncoder builds the embedding backend. A backend that cannot start is
// logged and skipped; only the embeddings models are then unavailable.
func newEncoder(cfg *config.Config, log *zap.Logger) embed.Encoder {
	ec := cfg.Embedding
	if strings.EqualFold(ec.Provider, "none") {
		log.Info("embedding provider disabled")
		return nil
	}
	enc, err := embed.New(embed.Config{
		Provider:  ec.Provider,
		ModelID:   ec.Model,
		Dimension: ec.Dimension,
		CacheSize: ec.CacheSize,
		ONNX: embed.OrtConfig{
			LibraryPath:   ec.ONNX.LibraryPath,
			ModelPath:     ec.ONNX.ModelPath,
			TokenizerPath: ec.ONNX.TokenizerPath,
			MaxSeqLen:     ec.ONNX.MaxSeqLen,
		},
		OpenAI: embed.OpenAIConfig{
			BaseURL:    ec.OpenAI.BaseURL,
			APIKeyEnv:  ec.OpenAI.APIKeyEnv,
			Model:      ec.OpenAI.Model,
			BatchSize:  ec.BatchSize,
			Timeout:    ec.OpenAI.Timeout,
			MaxRetries: ec.OpenAI.MaxRetries,
		},
	})
	if err != nil {
		log.Warn("embedding backend unavailable; embeddings models will not be trained",
			zap.String("provider", ec.Provider), zap.Error(err))
		return nil
	}
	log.Info("embedding backend ready",
		zap.String("provider", ec.Provider), zap.String("model", enc.ModelID()), zap.Int("dimension", enc.Dimension()))
	return enc
}

func serviceConfig(cfg *config.Config) service.Config {
	return service.Config{
		SampleSize: cfg.Dataset.SampleSize,
		Seed:       cfg.Training.Seed,
		TestRatio:  cfg.Training.TestRatio,
		Evaluate:   cfg.Training.Evaluate,
		Classifier: ml.Config{
			Clusters:      len(cfg.Categories),
			Neighbors:     cfg.Training.Neighbors,
			Seed:          cfg.Training.Seed,
			MaxDepth:      cfg.Training.MaxDepth,
			KMeansMaxIter: cfg.Training.KMeansMaxIter,
		},
		Embedding: vectorize.EmbeddingOptions{
			Prefix:    cfg.Embedding.Prefix,
			Normalize: cfg.Embedding.Normalize,
			BatchSize: cfg.Embedding.BatchSize,
		},
	}
}

func serverConfig(cfg *config.Config) phttp.ServerConfig {
	return phttp.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
