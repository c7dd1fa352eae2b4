// Command admin runs maintenance tasks against the chat store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chatserver/app"
	"chatserver/config"
	"chatserver/database"
	"chatserver/logger"
	"chatserver/services"
)

// env is filled by the root command before any subcommand runs.
type env struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var envFile string

	root := &cobra.Command{
		Use:           "admin",
		Short:         "Maintenance commands for the chat server store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				config.LoadEnvFiles(envFile)
			} else {
				config.LoadEnvFiles()
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log = logger.New(cfg)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "read environment overrides from this file")

	root.AddCommand(newMigrateCmd(e), newConversationsCmd(e))
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.StoreDriver != config.StoreDriverPostgres {
				return fmt.Errorf("migrate needs STORE_DRIVER=%s, got %s", config.StoreDriverPostgres, e.cfg.StoreDriver)
			}
			db, err := database.Connect(cmd.Context(), app.DatabaseConfig(e.cfg))
			if err != nil {
				return err
			}
			defer db.Close()
			return database.Migrate(cmd.Context(), db, e.log)
		},
	}
}

// withStore opens the configured store for the duration of fn.
func (e *env) withStore(ctx context.Context, fn func(services.MessageStore) error) error {
	store, err := app.OpenStore(ctx, e.cfg, e.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			e.log.Error().Err(err).Msg("close store")
		}
	}()
	return fn(store)
}
