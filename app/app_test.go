package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/config"
	"chatserver/services"
)

func TestOpenStoreMemory(t *testing.T) {
	cfg := &config.Config{StoreDriver: config.StoreDriverMemory}
	store, err := OpenStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &services.MemoryStore{}, store)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	cfg := &config.Config{StoreDriver: "mongo"}
	_, err := OpenStore(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestNewCompletionClient(t *testing.T) {
	cfg := &config.Config{
		OpenAIAPIKey:  "sk-test",
		OpenAIModel:   "gpt-3.5-turbo",
		OpenAIBaseURL: "http://localhost:1234/v1",
	}

	cfg.CompletionDriver = config.CompletionDriverOpenAI
	client, err := NewCompletionClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &services.OpenAIClient{}, client)

	cfg.CompletionDriver = config.CompletionDriverHTTP
	client, err = NewCompletionClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &services.HTTPCompletionClient{}, client)

	cfg.CompletionDriver = "grpc"
	_, err = NewCompletionClient(cfg)
	require.Error(t, err)
}

func TestDatabaseConfig(t *testing.T) {
	cfg := &config.Config{DatabaseURL: "postgres://x", DBMaxIdleConns: 2, DBMaxOpenConns: 9}
	dbCfg := DatabaseConfig(cfg)
	assert.Equal(t, "postgres://x", dbCfg.DSN)
	assert.Equal(t, 2, dbCfg.MaxIdleConns)
	assert.Equal(t, 9, dbCfg.MaxOpenConns)
}
