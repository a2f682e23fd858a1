// Package main is the entry point for the support desk.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yodabot/support-desk/internal/config"
	"github.com/yodabot/support-desk/internal/service"
	"github.com/yodabot/support-desk/internal/store"
	"github.com/yodabot/support-desk/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:          "supportdesk",
	Short:        "Two-sided Telegram support desk: user bot, staff bot and ops API",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger for cfg and installs it globally.
func newLogger(cfg *config.Config) (*logger.Logger, error) {
	var (
		log *logger.Logger
		err error
	)
	if cfg.Env == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(log)
	return log, nil
}

// openStore connects the configured backend and wraps it with logging and
// metrics.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	var backend store.Store
	switch cfg.StoreBackend {
	case config.StoreMemory:
		log.Warn("using in-memory store, tickets will not survive a restart")
		backend = store.NewMemory()
	default:
		fb, err := store.NewFirebase(ctx, store.FirebaseConfig{
			DatabaseURL:     cfg.FirebaseDatabaseURL,
			CredentialsFile: cfg.FirebaseServiceAccountKeyPath,
		})
		if err != nil {
			return nil, err
		}
		backend = fb
	}
	log.Info("store ready", zap.String("backend", cfg.StoreBackend))
	return store.NewInstrumented(backend, log), nil
}

func serviceOptions(cfg *config.Config, publisher service.EventPublisher) service.Options {
	return service.Options{
		CounterAttempts: cfg.CounterMaxAttempts,
		CounterBackoff:  cfg.CounterBackoff,
		Publisher:       publisher,
	}
}
