// Package app wires configuration into concrete stores and completion
// clients. The server and the admin CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"chatserver/config"
	"chatserver/database"
	"chatserver/services"
)

// OpenStore connects the store selected by STORE_DRIVER and brings its
// schema up to date. The caller closes it.
func OpenStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (services.MessageStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.Connect(ctx, DatabaseConfig(cfg))
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db, log); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("postgres store ready")
		return services.NewPostgresStore(db, log), nil

	case config.StoreDriverDynamoDB:
		client, err := services.NewDynamoDBClient(ctx, services.DynamoDBConfig{
			Endpoint:        cfg.DynamoDBEndpoint,
			Region:          cfg.DynamoDBRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			TablePrefix:     cfg.DynamoDBTablePrefix,
		})
		if err != nil {
			return nil, err
		}
		store := services.NewDynamoDBStore(client, cfg.DynamoDBTablePrefix, log)
		if err := store.EnsureTables(ctx); err != nil {
			return nil, err
		}
		log.Info().Str("region", cfg.DynamoDBRegion).Msg("dynamodb store ready")
		return store, nil

	case config.StoreDriverMemory:
		log.Warn().Msg("using in-memory store, data is lost on exit")
		return services.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// DatabaseConfig extracts the postgres pool settings.
func DatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	}
}

// NewCompletionClient returns the client selected by COMPLETION_DRIVER.
func NewCompletionClient(cfg *config.Config) (services.CompletionClient, error) {
	switch cfg.CompletionDriver {
	case config.CompletionDriverOpenAI:
		return services.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, nil), nil
	case config.CompletionDriverHTTP:
		return services.NewHTTPCompletionClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unsupported completion driver %q", cfg.CompletionDriver)
	}
}
