package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/model"
)

// UpsertProduit inserts or updates a single catalog product.
func (s *Store) UpsertProduit(ctx context.Context, p *model.Produit) error {
	query := `
	INSERT INTO produits (id, nom, prix_unitaire, quantite, code_barre, boutique_id, vendu)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		nom = excluded.nom,
		prix_unitaire = excluded.prix_unitaire,
		quantite = excluded.quantite,
		code_barre = excluded.code_barre,
		boutique_id = excluded.boutique_id,
		vendu = excluded.vendu
	`

	_, err := s.conn.ExecContext(ctx, query,
		p.ID, p.Nom, p.PrixUnitaire, p.Quantite, p.CodeBarre, p.BoutiqueID, boolToInt(p.Vendu))
	if err != nil {
		return fmt.Errorf("failed to upsert produit %d: %w", p.ID, err)
	}
	return nil
}

// ReplaceProduits overwrites the whole product catalog with the
// authoritative server copy. Runs in a single transaction so readers
// never observe a half-replaced catalog.
func (s *Store) ReplaceProduits(ctx context.Context, produits []*model.Produit) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin catalog replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM produits"); err != nil {
		return fmt.Errorf("failed to clear produits: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO produits (id, nom, prix_unitaire, quantite, code_barre, boutique_id, vendu)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare produit insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range produits {
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Nom, p.PrixUnitaire, p.Quantite, p.CodeBarre, p.BoutiqueID, boolToInt(p.Vendu)); err != nil {
			return fmt.Errorf("failed to insert produit %d: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog replace: %w", err)
	}
	return nil
}

// GetProduit retrieves a single product by server ID.
// Returns sql.ErrNoRows if the product is not cached.
func (s *Store) GetProduit(ctx context.Context, id int64) (*model.Produit, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, nom, prix_unitaire, quantite, code_barre, boutique_id, vendu
		 FROM produits WHERE id = ?`, id)

	p, err := scanProduit(row)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProduits returns the cached product catalog, unsold first,
// ordered by name.
func (s *Store) ListProduits(ctx context.Context) ([]*model.Produit, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, nom, prix_unitaire, quantite, code_barre, boutique_id, vendu
		 FROM produits ORDER BY vendu ASC, nom ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list produits: %w", err)
	}
	defer rows.Close()

	var produits []*model.Produit
	for rows.Next() {
		p, err := scanProduit(rows)
		if err != nil {
			return nil, err
		}
		produits = append(produits, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating produits: %w", err)
	}
	return produits, nil
}

// DecrementStock applies the optimistic local stock decrement that
// accompanies an offline sale. The quantity is clamped at zero; the
// server copy wins on the next catalog refresh either way.
func (s *Store) DecrementStock(ctx context.Context, produitID, quantite int64) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE produits SET quantite = MAX(0, quantite - ?) WHERE id = ?`,
		quantite, produitID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for produit %d: %w", produitID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check stock update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("produit %d not found in local catalog", produitID)
	}
	return nil
}

// ReplaceClients overwrites the client catalog with the server copy.
func (s *Store) ReplaceClients(ctx context.Context, clients []*model.Client) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin client replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM clients"); err != nil {
		return fmt.Errorf("failed to clear clients: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO clients (id, nom, telephone, email) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare client insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range clients {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Nom, c.Telephone, c.Email); err != nil {
			return fmt.Errorf("failed to insert client %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit client replace: %w", err)
	}
	return nil
}

// ListClients returns the cached client catalog ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]*model.Client, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, nom, telephone, email FROM clients ORDER BY nom ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*model.Client
	for rows.Next() {
		var c model.Client
		var tel, email sql.NullString
		if err := rows.Scan(&c.ID, &c.Nom, &tel, &email); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		c.Telephone = tel.String
		c.Email = email.String
		clients = append(clients, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}
	return clients, nil
}

// CountProduits returns the number of cached catalog products.
func (s *Store) CountProduits(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM produits").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count produits: %w", err)
	}
	return count, nil
}

// CountClients returns the number of cached clients.
func (s *Store) CountClients(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM clients").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count clients: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduit(row rowScanner) (*model.Produit, error) {
	var p model.Produit
	var codeBarre sql.NullString
	var vendu int

	err := row.Scan(&p.ID, &p.Nom, &p.PrixUnitaire, &p.Quantite, &codeBarre, &p.BoutiqueID, &vendu)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan produit: %w", err)
	}

	p.CodeBarre = codeBarre.String
	p.Vendu = vendu != 0
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
