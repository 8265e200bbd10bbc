package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var flagStatusVerbose bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and queue status",
	Long: `Display the state of the local sync store.

Shows:
  - Database location and size
  - Cached catalog counts
  - Pending and failed queue entries
  - Time of the last fully successful sync`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.New(os.Stderr, "[status] ", log.LstdFlags)

		_, cfg, err := loadConfig(logger)
		if err != nil {
			fatalf("%v", err)
		}

		info, err := os.Stat(cfg.Store.Path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("\nLocal store not initialized at %s\n", cfg.Store.Path)
				fmt.Printf("Run 'gvsync sync' or 'gvsync daemon' to create it\n\n")
				return
			}
			fatalf("checking store: %v", err)
		}

		s, err := openStore(cfg, logger)
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer s.Close()

		ctx := context.Background()

		produits, _ := s.CountProduits(ctx)
		clients, _ := s.CountClients(ctx)
		pendingV, failedV, err := s.CountPendingVentes(ctx)
		if err != nil {
			fatalf("reading queue: %v", err)
		}
		pendingD, failedD, err := s.CountPendingDepenses(ctx)
		if err != nil {
			fatalf("reading queue: %v", err)
		}

		fmt.Printf("\nStore: %s (%.1f KB)\n", s.Path(), float64(info.Size())/1024)
		fmt.Printf("Catalog: %d produits, %d clients\n", produits, clients)
		fmt.Printf("Queue: %d pending, %d failed ventes; %d pending, %d failed depenses\n",
			pendingV, failedV, pendingD, failedD)

		last, err := s.LastSync(ctx)
		if err != nil {
			fatalf("reading last sync: %v", err)
		}
		if last.IsZero() {
			fmt.Printf("Last sync: never\n")
		} else {
			fmt.Printf("Last sync: %s\n", last.Local().Format("2006-01-02 15:04:05"))
		}

		if flagStatusVerbose && (failedV > 0 || failedD > 0) {
			fmt.Println("\nFailed entries:")
			ventes, err := s.ListPendingVentes(ctx)
			if err != nil {
				fatalf("listing ventes: %v", err)
			}
			for _, v := range ventes {
				if v.LastError != "" {
					fmt.Printf("   vente %s: %s\n", v.OfflineID, v.LastError)
				}
			}
			depenses, err := s.ListPendingDepenses(ctx)
			if err != nil {
				fatalf("listing depenses: %v", err)
			}
			for _, d := range depenses {
				if d.LastError != "" {
					fmt.Printf("   depense %s: %s\n", d.OfflineID, d.LastError)
				}
			}
		}
		fmt.Println()
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&flagStatusVerbose, "verbose", "v", false, "list failed entries with diagnostics")
	rootCmd.AddCommand(statusCmd)
}
