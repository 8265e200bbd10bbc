// Package model provides data structures for the gestion-ventes sync core.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncStatus is the durable state of a pending queue entry.
//
// Only Pending and Failed are ever persisted. An entry being submitted
// to the server is tracked in the sync engine's memory, so a crash
// mid-submission always resumes from a durable state.
type SyncStatus string

const (
	// StatusPending marks an entry awaiting its first (or next) submission.
	StatusPending SyncStatus = "PENDING"
	// StatusFailed marks an entry whose last submission was rejected or
	// could not complete. Failed entries are retried on the next pass.
	StatusFailed SyncStatus = "FAILED"
)

// Produit is a catalog product cached from the server.
//
// The local copy is authoritative only while offline: stock is
// decremented optimistically when an offline sale is recorded, and the
// whole catalog is replaced on the next successful refresh.
type Produit struct {
	ID           int64   `json:"id"`
	Nom          string  `json:"nom"`
	PrixUnitaire float64 `json:"prix_unitaire"`
	Quantite     int64   `json:"quantite"`
	CodeBarre    string  `json:"code_barre,omitempty"`
	BoutiqueID   int64   `json:"boutique_id"`
	Vendu        bool    `json:"vendu"`
}

// Client is a customer record cached read-only from the server.
type Client struct {
	ID        int64  `json:"id"`
	Nom       string `json:"nom"`
	Telephone string `json:"telephone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Vente is a sale confirmed by the server (server-assigned ID).
// Immutable locally; superseded only by a server refresh.
type Vente struct {
	ID           int64     `json:"id"`
	ProduitID    int64     `json:"produit_id"`
	Quantite     int64     `json:"quantite"`
	MontantTotal float64   `json:"montant_total"`
	BoutiqueID   int64     `json:"boutique_id"`
	VendeurID    int64     `json:"vendeur_id,omitempty"`
	ClientID     *int64    `json:"client_id,omitempty"`
	DateVente    time.Time `json:"date_vente"`
}

// VentePending is a locally recorded sale not yet confirmed by the
// server. The business payload is write-once: after creation only
// Status and LastError may change, so a replay after a crash reproduces
// an identical request.
type VentePending struct {
	OfflineID    string     `json:"offline_id"`
	ProduitID    int64      `json:"produit_id"`
	Quantite     int64      `json:"quantite"`
	MontantTotal float64    `json:"montant_total"`
	BoutiqueID   int64      `json:"boutique_id"`
	VendeurID    int64      `json:"vendeur_id,omitempty"`
	ClientID     *int64     `json:"client_id,omitempty"`
	Note         string     `json:"note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Status       SyncStatus `json:"status"`
	LastError    string     `json:"last_error,omitempty"`
}

// Validate checks that the pending sale carries everything the remote
// create endpoint needs to apply it without local context.
func (v *VentePending) Validate() error {
	if v.OfflineID == "" {
		return fmt.Errorf("offline_id is required")
	}
	if v.ProduitID <= 0 {
		return fmt.Errorf("produit_id is required")
	}
	if v.Quantite <= 0 {
		return fmt.Errorf("quantite must be positive (got %d)", v.Quantite)
	}
	if v.MontantTotal < 0 {
		return fmt.Errorf("montant_total cannot be negative")
	}
	if v.BoutiqueID <= 0 {
		return fmt.Errorf("boutique_id is required")
	}
	if v.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// SetDefaults fills the generated and bookkeeping fields when omitted.
func (v *VentePending) SetDefaults() {
	if v.OfflineID == "" {
		v.OfflineID = NewOfflineID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if v.Status == "" {
		v.Status = StatusPending
	}
}

// DepensePending is a locally recorded expense not yet confirmed by
// the server. Same write-once payload contract as VentePending.
type DepensePending struct {
	OfflineID   string     `json:"offline_id"`
	Montant     float64    `json:"montant"`
	Categorie   string     `json:"categorie"`
	BoutiqueID  int64      `json:"boutique_id"`
	DateDepense time.Time  `json:"date_depense"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Status      SyncStatus `json:"status"`
	LastError   string     `json:"last_error,omitempty"`
}

// Depense is an expense confirmed by the server.
type Depense struct {
	ID          int64     `json:"id"`
	Montant     float64   `json:"montant"`
	Categorie   string    `json:"categorie"`
	BoutiqueID  int64     `json:"boutique_id"`
	DateDepense time.Time `json:"date_depense"`
	Description string    `json:"description,omitempty"`
}

// Validate checks the expense payload.
func (d *DepensePending) Validate() error {
	if d.OfflineID == "" {
		return fmt.Errorf("offline_id is required")
	}
	if d.Montant <= 0 {
		return fmt.Errorf("montant must be positive")
	}
	if d.Categorie == "" {
		return fmt.Errorf("categorie is required")
	}
	if d.BoutiqueID <= 0 {
		return fmt.Errorf("boutique_id is required")
	}
	if d.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// SetDefaults fills the generated and bookkeeping fields when omitted.
func (d *DepensePending) SetDefaults() {
	if d.OfflineID == "" {
		d.OfflineID = NewOfflineID()
	}
	if d.DateDepense.IsZero() {
		d.DateDepense = time.Now().UTC()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
}

// NewOfflineID generates an idempotency key for a locally created
// business event. The millisecond prefix keeps keys sortable by
// creation time; the UUID suffix makes them collision-resistant across
// devices sharing an account.
func NewOfflineID() string {
	return fmt.Sprintf("off_%d_%s", time.Now().UnixMilli(), uuid.NewString())
}
