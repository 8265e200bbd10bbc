package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/migrate"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Export or import the pending queues",
}

var queueExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export pending entries to a JSONL file",
	Long: `Export every pending sale and expense to a JSONL file, one entry
per line. Use this to carry unsynced work off a terminal that is being
retired before it could reconnect.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.New(os.Stderr, "[queue] ", log.LstdFlags)

		_, cfg, err := loadConfig(logger)
		if err != nil {
			fatalf("%v", err)
		}

		s, err := openStore(cfg, logger)
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer s.Close()

		result, err := migrate.Export(context.Background(), s, args[0])
		if err != nil {
			fatalf("export failed: %v", err)
		}
		fmt.Printf("Exported %d ventes and %d depenses to %s\n",
			result.Ventes, result.Depenses, args[0])
	},
}

var queueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import pending entries from a JSONL export",
	Long: `Import queue entries from a JSONL export. Entries already present
locally (same offline_id) are skipped, so re-importing a file is safe.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.New(os.Stderr, "[queue] ", log.LstdFlags)

		_, cfg, err := loadConfig(logger)
		if err != nil {
			fatalf("%v", err)
		}

		s, err := openStore(cfg, logger)
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer s.Close()

		result, err := migrate.Import(context.Background(), s, args[0])
		if err != nil {
			fatalf("import failed: %v", err)
		}
		fmt.Printf("Imported %d ventes and %d depenses (%d skipped)\n",
			result.Ventes, result.Depenses, result.Skipped)
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", e)
		}
	},
}

func init() {
	queueCmd.AddCommand(queueExportCmd)
	queueCmd.AddCommand(queueImportCmd)
	rootCmd.AddCommand(queueCmd)
}
