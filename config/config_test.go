package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, CompletionDriverOpenAI, cfg.CompletionDriver)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAIModel)
	assert.Equal(t, 60*time.Second, cfg.CompletionTimeout)
	assert.False(t, cfg.SerializeSends)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadNormalizesDrivers(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("STORE_DRIVER", " Memory ")
	t.Setenv("COMPLETION_DRIVER", "HTTP")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, CompletionDriverHTTP, cfg.CompletionDriver)
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	cfg := &Config{
		StoreDriver:       "sqlite",
		CompletionDriver:  CompletionDriverOpenAI,
		OpenAIModel:       "gpt-3.5-turbo",
		CompletionTimeout: time.Second,
	}
	assert.ErrorContains(t, cfg.Validate(), "STORE_DRIVER")

	cfg.StoreDriver = StoreDriverMemory
	cfg.CompletionDriver = "grpc"
	assert.ErrorContains(t, cfg.Validate(), "COMPLETION_DRIVER")

	cfg.CompletionDriver = CompletionDriverHTTP
	cfg.CompletionTimeout = 0
	assert.ErrorContains(t, cfg.Validate(), "COMPLETION_TIMEOUT")
}

func TestLoadEnvFilesOverlays(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OPENAI_API_KEY=sk-from-file\nSTORE_DRIVER=memory\n"), 0o600))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("STORE_DRIVER", "")

	LoadEnvFiles(path, filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.OpenAIAPIKey)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
}
