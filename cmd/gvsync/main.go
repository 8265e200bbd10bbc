package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/api"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/config"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/store"
	gvsync "github.com/amparachrist-beep/gestion-ventes-sync/internal/sync"
)

var (
	flagConfig string
	flagDB     string
)

var rootCmd = &cobra.Command{
	Use:   "gvsync",
	Short: "Offline-first sync for gestion-ventes terminals",
	Long: `gvsync keeps a point-of-sale terminal usable without a network
connection. Sales and expenses recorded offline are queued in a local
SQLite database and pushed to the gestion-ventes backend when
connectivity returns; product and client catalogs are refreshed from
the server on every successful pass.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "local database path (overrides config)")
}

// loadConfig resolves the effective configuration for a command run.
func loadConfig(logger *log.Logger) (*config.Loader, *config.Config, error) {
	loader, err := config.Load(flagConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	cfg := loader.Current()
	if flagDB != "" {
		cfg.Store.Path = flagDB
	}
	return loader, cfg, nil
}

// openStore opens the local database, falling back to an in-memory
// store when the configured path is unusable.
func openStore(cfg *config.Config, logger *log.Logger) (*store.Store, error) {
	return store.OpenWithFallback(cfg.Store.Path, logger)
}

// buildEngine wires the remote client and sync engine from config.
func buildEngine(cfg *config.Config, s *store.Store, logger *log.Logger) (*gvsync.Engine, *api.Client) {
	client := api.New(cfg.API.BaseURL, func(ctx context.Context) (string, error) {
		if cfg.API.Token == "" {
			return "", fmt.Errorf("no API token configured")
		}
		return cfg.API.Token, nil
	}, &http.Client{}, logger)

	engine := gvsync.New(s, client, &gvsync.Config{
		RequestTimeout: cfg.RequestTimeout(),
		Logger:         logger,
	})
	return engine, client
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
