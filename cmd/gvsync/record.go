package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/model"
)

// Offline recording commands. These are what the POS front end calls
// into when the network is down: the business event is written to the
// local queue and the cached catalog is adjusted so the terminal keeps
// an accurate view of stock.

var (
	flagVenteProduit  int64
	flagVenteQuantite int64
	flagVenteMontant  float64
	flagVenteClient   int64
	flagVenteNote     string
)

var venteCmd = &cobra.Command{
	Use:   "vente",
	Short: "Record a sale in the offline queue",
	Long: `Record a sale locally. The sale is queued for sync and the cached
stock for the product is decremented immediately so follow-up sales
see the updated availability.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.New(os.Stderr, "[vente] ", log.LstdFlags)

		_, cfg, err := loadConfig(logger)
		if err != nil {
			fatalf("%v", err)
		}

		s, err := openStore(cfg, logger)
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer s.Close()

		ctx := context.Background()

		v := &model.VentePending{
			ProduitID:    flagVenteProduit,
			Quantite:     flagVenteQuantite,
			MontantTotal: flagVenteMontant,
			BoutiqueID:   cfg.BoutiqueID,
			VendeurID:    cfg.VendeurID,
			Note:         flagVenteNote,
		}
		if flagVenteClient > 0 {
			v.ClientID = &flagVenteClient
		}

		if err := s.EnqueueVente(ctx, v); err != nil {
			fatalf("recording sale: %v", err)
		}
		if err := s.DecrementStock(ctx, v.ProduitID, v.Quantite); err != nil {
			logger.Printf("Stock not adjusted: %v", err)
		}

		fmt.Printf("Sale queued as %s\n", v.OfflineID)
	},
}

var (
	flagDepenseMontant   float64
	flagDepenseCategorie string
	flagDepenseDesc      string
)

var depenseCmd = &cobra.Command{
	Use:   "depense",
	Short: "Record an expense in the offline queue",
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.New(os.Stderr, "[depense] ", log.LstdFlags)

		_, cfg, err := loadConfig(logger)
		if err != nil {
			fatalf("%v", err)
		}

		s, err := openStore(cfg, logger)
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer s.Close()

		d := &model.DepensePending{
			Montant:     flagDepenseMontant,
			Categorie:   flagDepenseCategorie,
			BoutiqueID:  cfg.BoutiqueID,
			DateDepense: time.Now(),
			Description: flagDepenseDesc,
		}

		if err := s.EnqueueDepense(context.Background(), d); err != nil {
			fatalf("recording expense: %v", err)
		}

		fmt.Printf("Expense queued as %s\n", d.OfflineID)
	},
}

func init() {
	venteCmd.Flags().Int64Var(&flagVenteProduit, "produit", 0, "product id (required)")
	venteCmd.Flags().Int64Var(&flagVenteQuantite, "quantite", 1, "quantity sold")
	venteCmd.Flags().Float64Var(&flagVenteMontant, "montant", 0, "total amount (required)")
	venteCmd.Flags().Int64Var(&flagVenteClient, "client", 0, "client id (optional)")
	venteCmd.Flags().StringVar(&flagVenteNote, "note", "", "free-form note")
	_ = venteCmd.MarkFlagRequired("produit")
	_ = venteCmd.MarkFlagRequired("montant")

	depenseCmd.Flags().Float64Var(&flagDepenseMontant, "montant", 0, "amount (required)")
	depenseCmd.Flags().StringVar(&flagDepenseCategorie, "categorie", "", "expense category (required)")
	depenseCmd.Flags().StringVar(&flagDepenseDesc, "description", "", "free-form description")
	_ = depenseCmd.MarkFlagRequired("montant")
	_ = depenseCmd.MarkFlagRequired("categorie")

	rootCmd.AddCommand(venteCmd)
	rootCmd.AddCommand(depenseCmd)
}
