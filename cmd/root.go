package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/policypulse/billsync/internal/config"
	"github.com/policypulse/billsync/internal/legiscan"
	"github.com/policypulse/billsync/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "billsync",
	Short: "Legislative bill ingestion pipeline",
	Long:  "Searches LegiScan for legislation, fetches bill details, and keeps the bills table incrementally synchronized with idempotent writes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore connects to Postgres using the configured URL.
func openStore(ctx context.Context) (*store.Postgres, error) {
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
}

// newClient builds the provider client from config.
func newClient() *legiscan.Client {
	return legiscan.New(cfg.LegiScan.APIKey,
		legiscan.WithBaseURL(cfg.LegiScan.BaseURL),
		legiscan.WithMinInterval(cfg.LegiScan.MinInterval),
		legiscan.WithMaxRetries(cfg.LegiScan.MaxRetries),
		legiscan.WithBaseBackoff(time.Duration(cfg.LegiScan.BaseBackoffSecs)*time.Second),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
