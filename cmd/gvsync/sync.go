package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	gvsync "github.com/amparachrist-beep/gestion-ventes-sync/internal/sync"
)

var flagSyncVentesOnly bool
var flagSyncDepensesOnly bool
var flagSyncCataloguesOnly bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass against the backend",
	Long: `Run a single sync pass:

  1. Refresh product and client catalogs from the server
  2. Push pending sales in creation order
  3. Push pending expenses in creation order

Entries rejected by the server are marked FAILED with the server's
diagnostic and retried (connectivity failures) or held for review
(validation failures). Exits non-zero if nothing could be synced.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)

		_, cfg, err := loadConfig(logger)
		if err != nil {
			fatalf("%v", err)
		}

		s, err := openStore(cfg, logger)
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer s.Close()

		engine, _ := buildEngine(cfg, s, logger)
		ctx := context.Background()

		if flagSyncCataloguesOnly {
			if err := engine.RefreshCatalogues(ctx); err != nil {
				fatalf("catalog refresh failed: %v", err)
			}
			fmt.Println("Catalogs refreshed")
			return
		}

		start := time.Now()
		var result *gvsync.Result
		switch {
		case flagSyncVentesOnly:
			result, err = engine.SyncPendingVentes(ctx)
		case flagSyncDepensesOnly:
			result, err = engine.SyncPendingDepenses(ctx)
		default:
			result, err = engine.SyncFull(ctx)
		}
		if err != nil {
			if errors.Is(err, gvsync.ErrSyncInFlight) {
				fatalf("a sync pass is already running")
			}
			fatalf("sync failed: %v", err)
		}

		elapsed := time.Since(start).Round(time.Millisecond)
		fmt.Printf("Sync finished in %v\n", elapsed)
		fmt.Printf("   Confirmed: %d/%d\n", result.Confirmed, result.Total)
		if result.Failed > 0 {
			fmt.Printf("   Failed: %d (run 'gvsync status' for details)\n", result.Failed)
		}
		if !result.Clean {
			fmt.Printf("   Pass was partial; pending entries will retry next run\n")
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().BoolVar(&flagSyncVentesOnly, "ventes", false, "sync only pending sales")
	syncCmd.Flags().BoolVar(&flagSyncDepensesOnly, "depenses", false, "sync only pending expenses")
	syncCmd.Flags().BoolVar(&flagSyncCataloguesOnly, "catalogues", false, "refresh catalogs without draining the queues")
	rootCmd.AddCommand(syncCmd)
}
