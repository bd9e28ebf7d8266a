package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/studyspark/internal/logger"
	"github.com/valpere/studyspark/internal/provider"
)

func TestLoad_Defaults(t *testing.T) {
	v, err := New(filepath.Join(t.TempDir(), "absent-is-optional-only-by-default.yaml"))
	require.Error(t, err, "an explicit config file must exist")
	assert.Nil(t, v)

	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	v, err = New("")
	require.NoError(t, err)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, 10, cfg.Pipeline.MinLength)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.Timeout)
	assert.True(t, cfg.Store.Cache)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	oc := cfg.Orchestrator()
	assert.Equal(t, 10, oc.MinLength)
	assert.Equal(t, 30*time.Second, oc.Timeout)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studyspark.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  name: openrouter
  api_key: from-file
  model: mistralai/mistral-nemo
pipeline:
  timeout: 45s
  chunk_size: 1500
  refine: true
store:
  fuzzy_threshold: 0.95
log:
  level: debug
`), 0o644))

	t.Setenv("STUDYSPARK_PIPELINE_MIN_LENGTH", "25")
	t.Setenv("STUDYSPARK_LOG_JSON", "true")

	v, err := New(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.Provider.Name)
	assert.Equal(t, "from-file", cfg.Provider.APIKey)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, 1500, cfg.Pipeline.ChunkSize)
	assert.True(t, cfg.Pipeline.Refine)
	assert.Equal(t, 25, cfg.Pipeline.MinLength)
	assert.InDelta(t, 0.95, cfg.Store.FuzzyThreshold, 1e-9)

	lc := cfg.LoggerConfig()
	assert.Equal(t, logger.DebugLevel, lc.Level)
	assert.True(t, lc.JSON)

	assert.Equal(t, "mistralai/mistral-nemo", cfg.Orchestrator().Session.Model)
}

func TestLoad_OpenRouterKeyFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STUDYSPARK_PROVIDER_NAME", "openrouter")
	t.Setenv("OPENROUTER_API_KEY", "sk-env")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Provider.APIKey)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Provider: providerConfig("ollama", ""),
			Pipeline: Pipeline{MinLength: 10},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown provider", func(c *Config) { c.Provider.Name = "gpt" }, "unknown provider"},
		{"openrouter without key", func(c *Config) { c.Provider = providerConfig("openrouter", "") }, "api_key"},
		{"min length", func(c *Config) { c.Pipeline.MinLength = 0 }, "min_length"},
		{"negative chunk size", func(c *Config) { c.Pipeline.ChunkSize = -1 }, "chunk_size"},
		{"negative timeout", func(c *Config) { c.Pipeline.Timeout = -time.Second }, "timeout"},
		{"fuzzy threshold", func(c *Config) { c.Store.FuzzyThreshold = 1.5 }, "fuzzy_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("STUDYSPARK_TEST_VALUE=loaded\n"), 0o644))
	t.Setenv("STUDYSPARK_TEST_VALUE", "")
	os.Unsetenv("STUDYSPARK_TEST_VALUE")

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "loaded", os.Getenv("STUDYSPARK_TEST_VALUE"))

	assert.Error(t, LoadEnv(filepath.Join(dir, "missing.env")))

	chdir(t, dir)
	assert.NoError(t, LoadEnv(""), "a missing default .env is fine")
}

func providerConfig(name, key string) provider.Config {
	return provider.Config{Name: name, APIKey: key}
}

// chdir mirrors testing.T.Chdir (Go 1.24+): it changes the working directory
// for the rest of the test and restores the original one on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}
