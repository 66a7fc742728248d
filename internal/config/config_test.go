package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "mock", cfg.LLM.Generator.Provider)
	assert.Equal(t, 14, cfg.Deadline.TimeWindowDays)
	assert.InDelta(t, 0.60, cfg.Deadline.SimilarityThreshold, 1e-9)
	assert.Equal(t, 2000, cfg.Enrich.ContextBudget)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialInterval)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFrom_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  backend: memory
deadline:
  default_window_days: 30
llm:
  generator:
    provider: mock
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 30, cfg.Deadline.DefaultWindowDays)
	// untouched keys keep their defaults
	assert.Equal(t, 14, cfg.Deadline.TimeWindowDays)
}

func TestLoadConfigFrom_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: memory\n"), 0o600))
	t.Setenv("SHOPQ_DEADLINE_DEFAULT_WINDOW_DAYS", "45")

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Deadline.DefaultWindowDays)
}

func TestLoadConfigFrom_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: cassandra\n"), 0o600))

	_, err := LoadConfigFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadConfigFrom_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfigFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
