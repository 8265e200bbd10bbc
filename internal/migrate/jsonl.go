// Package migrate moves pending queues between devices as JSONL,
// one queue entry per line. The main use is carrying unsynced work off
// a terminal that is being replaced before it ever got back online.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/model"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/store"
)

// line is the envelope for one exported queue entry.
type line struct {
	Kind    string                `json:"kind"`
	Vente   *model.VentePending   `json:"vente,omitempty"`
	Depense *model.DepensePending `json:"depense,omitempty"`
}

// Result contains statistics about an export or import.
type Result struct {
	Ventes   int
	Depenses int
	Skipped  int
	Errors   []string
}

// Export writes every pending sale and expense to a JSONL file. The
// file is written to a temp path and renamed so a crash mid-export
// never leaves a truncated file behind.
func Export(ctx context.Context, s *store.Store, path string) (*Result, error) {
	ventes, err := s.ListPendingVentes(ctx)
	if err != nil {
		return nil, err
	}
	depenses, err := s.ListPendingDepenses(ctx)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".gvsync-export-*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	enc := json.NewEncoder(tmp)
	result := &Result{}

	for _, v := range ventes {
		if err := enc.Encode(line{Kind: "vente", Vente: v}); err != nil {
			return nil, fmt.Errorf("failed to write vente %s: %w", v.OfflineID, err)
		}
		result.Ventes++
	}
	for _, d := range depenses {
		if err := enc.Encode(line{Kind: "depense", Depense: d}); err != nil {
			return nil, fmt.Errorf("failed to write depense %s: %w", d.OfflineID, err)
		}
		result.Depenses++
	}

	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to finalize export: %w", err)
	}
	return result, nil
}

// Import reads a JSONL export and enqueues its entries. Entries whose
// offline_id already exists locally are skipped, so importing the same
// file twice (or onto the original device) is harmless.
func Import(ctx context.Context, s *store.Store, path string) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	result := &Result{}
	lineNum := 0

	for {
		var l line
		if err := dec.Decode(&l); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		switch l.Kind {
		case "vente":
			if l.Vente == nil {
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: vente entry without payload", lineNum))
				continue
			}
			exists, err := s.HasPendingVente(ctx, l.Vente.OfflineID)
			if err != nil {
				return nil, err
			}
			if exists {
				result.Skipped++
				continue
			}
			if err := s.EnqueueVente(ctx, l.Vente); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
				continue
			}
			result.Ventes++

		case "depense":
			if l.Depense == nil {
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: depense entry without payload", lineNum))
				continue
			}
			exists, err := s.HasPendingDepense(ctx, l.Depense.OfflineID)
			if err != nil {
				return nil, err
			}
			if exists {
				result.Skipped++
				continue
			}
			if err := s.EnqueueDepense(ctx, l.Depense); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
				continue
			}
			result.Depenses++

		default:
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: unknown kind %q", lineNum, l.Kind))
		}
	}

	return result, nil
}
