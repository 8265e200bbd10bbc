package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/model"
)

// The pending-operation queues guarantee no locally recorded business
// event is lost before it reaches the server. Entries are write-once
// in their business fields: after EnqueueVente/EnqueueDepense only the
// status and diagnostic columns ever change, and Confirm (a delete) is
// the only way an entry leaves its queue.

// EnqueueVente persists a locally recorded sale awaiting sync.
// Generates an offline_id and timestamps when absent.
func (s *Store) EnqueueVente(ctx context.Context, v *model.VentePending) error {
	v.SetDefaults()
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid pending vente: %w", err)
	}

	query := `
	INSERT INTO ventes_pending (
		offline_id, produit_id, quantite, montant_total, boutique_id,
		vendeur_id, client_id, note, created_at, status, last_error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		v.OfflineID, v.ProduitID, v.Quantite, v.MontantTotal, v.BoutiqueID,
		v.VendeurID, int64ToNull(v.ClientID), v.Note,
		v.CreatedAt.UTC().Format(time.RFC3339Nano), string(v.Status), v.LastError)
	if err != nil {
		return fmt.Errorf("failed to enqueue vente %s: %w", v.OfflineID, err)
	}
	return nil
}

// ListPendingVentes returns every queued sale in creation order
// (oldest first). Confirmed entries are deleted rather than flagged,
// so everything in the table is still pending or failed.
func (s *Store) ListPendingVentes(ctx context.Context) ([]*model.VentePending, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT offline_id, produit_id, quantite, montant_total, boutique_id,
	       vendeur_id, client_id, note, created_at, status, last_error
	FROM ventes_pending
	ORDER BY created_at ASC, offline_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ventes: %w", err)
	}
	defer rows.Close()

	var ventes []*model.VentePending
	for rows.Next() {
		var v model.VentePending
		var vendeur sql.NullInt64
		var clientID sql.NullInt64
		var note, lastErr sql.NullString
		var createdAt, status string

		err := rows.Scan(&v.OfflineID, &v.ProduitID, &v.Quantite, &v.MontantTotal,
			&v.BoutiqueID, &vendeur, &clientID, &note, &createdAt, &status, &lastErr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending vente: %w", err)
		}

		v.VendeurID = vendeur.Int64
		v.ClientID = nullToInt64(clientID)
		v.Note = note.String
		v.LastError = lastErr.String
		v.Status = model.SyncStatus(status)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			v.CreatedAt = t
		}

		ventes = append(ventes, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending ventes: %w", err)
	}
	return ventes, nil
}

// MarkVenteFailed records a failed submission attempt. The entry is
// retained for the next pass; failures are never silently dropped.
func (s *Store) MarkVenteFailed(ctx context.Context, offlineID, reason string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE ventes_pending SET status = ?, last_error = ? WHERE offline_id = ?`,
		string(model.StatusFailed), reason, offlineID)
	if err != nil {
		return fmt.Errorf("failed to mark vente %s failed: %w", offlineID, err)
	}
	return checkExists(res, "vente", offlineID)
}

// ConfirmVente removes a queue entry after the server acknowledged it.
func (s *Store) ConfirmVente(ctx context.Context, offlineID string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM ventes_pending WHERE offline_id = ?`, offlineID)
	if err != nil {
		return fmt.Errorf("failed to confirm vente %s: %w", offlineID, err)
	}
	return nil
}

// HasPendingVente reports whether a queue entry with the given
// offline_id exists.
func (s *Store) HasPendingVente(ctx context.Context, offlineID string) (bool, error) {
	return s.queueHas(ctx, "ventes_pending", offlineID)
}

// CountPendingVentes returns pending and failed sale counts.
func (s *Store) CountPendingVentes(ctx context.Context) (pending, failed int, err error) {
	return s.countQueue(ctx, "ventes_pending")
}

// PutVenteSynced records a server-confirmed sale in the local cache.
func (s *Store) PutVenteSynced(ctx context.Context, v *model.Vente) error {
	query := `
	INSERT INTO ventes_synced (id, produit_id, quantite, montant_total, boutique_id, vendeur_id, client_id, date_vente)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		produit_id = excluded.produit_id,
		quantite = excluded.quantite,
		montant_total = excluded.montant_total,
		boutique_id = excluded.boutique_id,
		vendeur_id = excluded.vendeur_id,
		client_id = excluded.client_id,
		date_vente = excluded.date_vente
	`

	_, err := s.conn.ExecContext(ctx, query,
		v.ID, v.ProduitID, v.Quantite, v.MontantTotal, v.BoutiqueID,
		v.VendeurID, int64ToNull(v.ClientID), v.DateVente.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record synced vente %d: %w", v.ID, err)
	}
	return nil
}

// ListVentesSynced returns locally cached confirmed sales, newest first.
func (s *Store) ListVentesSynced(ctx context.Context) ([]*model.Vente, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, produit_id, quantite, montant_total, boutique_id, vendeur_id, client_id, date_vente
	FROM ventes_synced ORDER BY date_vente DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list synced ventes: %w", err)
	}
	defer rows.Close()

	var ventes []*model.Vente
	for rows.Next() {
		var v model.Vente
		var vendeur, clientID sql.NullInt64
		var dateVente string

		err := rows.Scan(&v.ID, &v.ProduitID, &v.Quantite, &v.MontantTotal,
			&v.BoutiqueID, &vendeur, &clientID, &dateVente)
		if err != nil {
			return nil, fmt.Errorf("failed to scan synced vente: %w", err)
		}

		v.VendeurID = vendeur.Int64
		v.ClientID = nullToInt64(clientID)
		if t, err := time.Parse(time.RFC3339Nano, dateVente); err == nil {
			v.DateVente = t
		}
		ventes = append(ventes, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating synced ventes: %w", err)
	}
	return ventes, nil
}

// EnqueueDepense persists a locally recorded expense awaiting sync.
func (s *Store) EnqueueDepense(ctx context.Context, d *model.DepensePending) error {
	d.SetDefaults()
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid pending depense: %w", err)
	}

	query := `
	INSERT INTO depenses_pending (
		offline_id, montant, categorie, boutique_id, date_depense,
		description, created_at, status, last_error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		d.OfflineID, d.Montant, d.Categorie, d.BoutiqueID,
		d.DateDepense.UTC().Format(time.RFC3339Nano), d.Description,
		d.CreatedAt.UTC().Format(time.RFC3339Nano), string(d.Status), d.LastError)
	if err != nil {
		return fmt.Errorf("failed to enqueue depense %s: %w", d.OfflineID, err)
	}
	return nil
}

// ListPendingDepenses returns every queued expense in creation order.
func (s *Store) ListPendingDepenses(ctx context.Context) ([]*model.DepensePending, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT offline_id, montant, categorie, boutique_id, date_depense,
	       description, created_at, status, last_error
	FROM depenses_pending
	ORDER BY created_at ASC, offline_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending depenses: %w", err)
	}
	defer rows.Close()

	var depenses []*model.DepensePending
	for rows.Next() {
		var d model.DepensePending
		var description, lastErr sql.NullString
		var dateDepense, createdAt, status string

		err := rows.Scan(&d.OfflineID, &d.Montant, &d.Categorie, &d.BoutiqueID,
			&dateDepense, &description, &createdAt, &status, &lastErr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending depense: %w", err)
		}

		d.Description = description.String
		d.LastError = lastErr.String
		d.Status = model.SyncStatus(status)
		if t, err := time.Parse(time.RFC3339Nano, dateDepense); err == nil {
			d.DateDepense = t
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			d.CreatedAt = t
		}

		depenses = append(depenses, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending depenses: %w", err)
	}
	return depenses, nil
}

// MarkDepenseFailed records a failed submission attempt for an expense.
func (s *Store) MarkDepenseFailed(ctx context.Context, offlineID, reason string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE depenses_pending SET status = ?, last_error = ? WHERE offline_id = ?`,
		string(model.StatusFailed), reason, offlineID)
	if err != nil {
		return fmt.Errorf("failed to mark depense %s failed: %w", offlineID, err)
	}
	return checkExists(res, "depense", offlineID)
}

// ConfirmDepense removes an expense queue entry after server acknowledgement.
func (s *Store) ConfirmDepense(ctx context.Context, offlineID string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM depenses_pending WHERE offline_id = ?`, offlineID)
	if err != nil {
		return fmt.Errorf("failed to confirm depense %s: %w", offlineID, err)
	}
	return nil
}

// HasPendingDepense reports whether an expense queue entry with the
// given offline_id exists.
func (s *Store) HasPendingDepense(ctx context.Context, offlineID string) (bool, error) {
	return s.queueHas(ctx, "depenses_pending", offlineID)
}

// CountPendingDepenses returns pending and failed expense counts.
func (s *Store) CountPendingDepenses(ctx context.Context) (pending, failed int, err error) {
	return s.countQueue(ctx, "depenses_pending")
}

func (s *Store) countQueue(ctx context.Context, table string) (pending, failed int, err error) {
	query := fmt.Sprintf(`
	SELECT
		COALESCE(SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0)
	FROM %s`, table)

	if err := s.conn.QueryRowContext(ctx, query).Scan(&pending, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return pending, failed, nil
}

func (s *Store) queueHas(ctx context.Context, table, offlineID string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE offline_id = ?`, table)

	var one int
	err := s.conn.QueryRowContext(ctx, query, offlineID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s for %s: %w", table, offlineID, err)
	}
	return true, nil
}

func checkExists(res sql.Result, kind, offlineID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check %s update: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("pending %s %s not found", kind, offlineID)
	}
	return nil
}
