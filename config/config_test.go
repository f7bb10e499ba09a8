package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000", "http://frontend:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 1000, cfg.Dataset.SampleSize)
	assert.Equal(t, []string{"astro-ph", "cond-mat", "cs", "math", "physics"}, cfg.Categories)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, 0.2, cfg.Training.TestRatio)
	assert.Equal(t, 5, cfg.Training.Neighbors)
	assert.True(t, cfg.Training.AutoInitialize)
	assert.Equal(t, "intfloat/multilingual-e5-base", cfg.Embedding.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.True(t, cfg.Embedding.Normalize)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverridesOnlyWhatIsSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
server:
  port: 9001
dataset:
  source: file
  path: abstracts.jsonl
  sample_size: 200
training:
  auto_initialize: false
  evaluate: true
embedding:
  provider: hashing
  dimension: 64
  normalize: false
  openai:
    timeout: 5s
log:
  level: debug
  format: console
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "file", cfg.Dataset.Source)
	assert.Equal(t, 200, cfg.Dataset.SampleSize)
	assert.False(t, cfg.Training.AutoInitialize)
	assert.True(t, cfg.Training.Evaluate)
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
	assert.Equal(t, 64, cfg.Embedding.Dimension)
	assert.False(t, cfg.Embedding.Normalize)
	assert.Equal(t, 5*time.Second, cfg.Embedding.OpenAI.Timeout)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedding.OpenAI.APIKeyEnv)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Len(t, cfg.Categories, 5)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PUBCLASS_PORT", "8088")
	t.Setenv("PUBCLASS_LOG_LEVEL", "warn")
	t.Setenv("PUBCLASS_DATASET_PATH", "/data/sample.jsonl")
	t.Setenv("PUBCLASS_DB_PATH", ":memory:")
	t.Setenv("PUBCLASS_EMBEDDING_PROVIDER", "none")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "file", cfg.Dataset.Source)
	assert.Equal(t, "/data/sample.jsonl", cfg.Dataset.Path)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "none", cfg.Embedding.Provider)
}

func TestEnvOverrideRejectsBadPort(t *testing.T) {
	t.Setenv("PUBCLASS_PORT", "eighty")
	_, err := Load("")
	assert.ErrorContains(t, err, "PUBCLASS_PORT")
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	writeFile(t, envFile, "PUBCLASS_TEST_DOTENV=from-file\nPUBCLASS_TEST_DOTENV_SET=from-file\n")
	t.Setenv("PUBCLASS_TEST_DOTENV_SET", "from-env")
	t.Cleanup(func() { os.Unsetenv("PUBCLASS_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-file", os.Getenv("PUBCLASS_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("PUBCLASS_TEST_DOTENV_SET"))
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000
	cfg.Dataset.Source = "s3"
	cfg.Categories = []string{"cs", "cs"}
	cfg.Training.TestRatio = 1
	cfg.Embedding.Provider = "word2vec"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"server.port", "dataset.source", "duplicate", "test_ratio", "embedding.provider", "log.level"} {
		assert.Contains(t, err.Error(), want)
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "server: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "log:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	var level atomic.Value
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, zap.NewNop(), func(cfg *Config) { level.Store(cfg.Log.Level) })
	}()

	// The watcher may not be registered yet; keep rewriting until it sees one.
	require.Eventually(t, func() bool {
		writeFile(t, path, "log:\n  level: debug\n")
		v, _ := level.Load().(string)
		return v == "debug"
	}, 5*time.Second, 150*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
