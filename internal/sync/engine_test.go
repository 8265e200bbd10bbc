package sync

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	stdsync "sync"
	"testing"
	"time"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/api"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/model"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/progress"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/store"
)

// fakeRemote is an in-memory backend standing in for the REST client.
type fakeRemote struct {
	mu stdsync.Mutex

	produits    []*model.Produit
	clients     []*model.Client
	produitsErr error
	clientsErr  error

	// venteErr decides per-entry failures; nil means accept.
	venteErr   func(offlineID string) error
	depenseErr func(offlineID string) error

	venteCalls   []string
	depenseCalls []string
	nextID       int64

	// release, when set, blocks CreateVente until closed.
	release chan struct{}
}

func (f *fakeRemote) CreateVente(ctx context.Context, v *model.VentePending) (*model.Vente, error) {
	// Record the submission before any blocking so tests can observe
	// an in-flight call.
	f.mu.Lock()
	f.venteCalls = append(f.venteCalls, v.OfflineID)
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.venteErr != nil {
		if err := f.venteErr(v.OfflineID); err != nil {
			return nil, err
		}
	}

	f.nextID++
	return &model.Vente{
		ID:           f.nextID,
		ProduitID:    v.ProduitID,
		Quantite:     v.Quantite,
		MontantTotal: v.MontantTotal,
		BoutiqueID:   v.BoutiqueID,
		VendeurID:    v.VendeurID,
		ClientID:     v.ClientID,
		DateVente:    v.CreatedAt,
	}, nil
}

func (f *fakeRemote) CreateDepense(ctx context.Context, d *model.DepensePending) (*model.Depense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.depenseCalls = append(f.depenseCalls, d.OfflineID)
	if f.depenseErr != nil {
		if err := f.depenseErr(d.OfflineID); err != nil {
			return nil, err
		}
	}

	f.nextID++
	return &model.Depense{
		ID: f.nextID, Montant: d.Montant, Categorie: d.Categorie,
		BoutiqueID: d.BoutiqueID, DateDepense: d.DateDepense,
	}, nil
}

func (f *fakeRemote) ListProduits(ctx context.Context) ([]*model.Produit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.produitsErr != nil {
		return nil, f.produitsErr
	}
	return f.produits, nil
}

func (f *fakeRemote) ListClients(ctx context.Context) ([]*model.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clientsErr != nil {
		return nil, f.clientsErr
	}
	return f.clients, nil
}

func (f *fakeRemote) ventesSubmitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.venteCalls...)
}

func connectivityErr() error {
	return &api.Error{Class: api.ClassConnectivity, Message: "connection refused"}
}

func validationErr(msg string) error {
	return &api.Error{Class: api.ClassValidation, StatusCode: http.StatusBadRequest, Message: msg}
}

func authErr() error {
	return &api.Error{Class: api.ClassAuth, StatusCode: http.StatusUnauthorized, Message: "token expired"}
}

// setupTest wires an engine over an in-memory store and a fake backend.
func setupTest(t *testing.T) (*Engine, *store.Store, *fakeRemote) {
	t.Helper()

	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	remote := &fakeRemote{}
	engine := New(s, remote, &Config{
		RequestTimeout: time.Second,
		Logger:         log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	return engine, s, remote
}

func enqueueVente(t *testing.T, s *store.Store, offlineID string, createdAt time.Time) {
	t.Helper()
	err := s.EnqueueVente(context.Background(), &model.VentePending{
		OfflineID:    offlineID,
		ProduitID:    1,
		Quantite:     1,
		MontantTotal: 100,
		BoutiqueID:   1,
		CreatedAt:    createdAt,
	})
	if err != nil {
		t.Fatalf("failed to enqueue %s: %v", offlineID, err)
	}
}

func enqueueDepense(t *testing.T, s *store.Store, offlineID string, createdAt time.Time) {
	t.Helper()
	err := s.EnqueueDepense(context.Background(), &model.DepensePending{
		OfflineID:  offlineID,
		Montant:    200,
		Categorie:  "transport",
		BoutiqueID: 1,
		CreatedAt:  createdAt,
	})
	if err != nil {
		t.Fatalf("failed to enqueue %s: %v", offlineID, err)
	}
}

func TestSyncFullDrainsInCreationOrder(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	enqueueVente(t, s, "off_a", base)
	enqueueVente(t, s, "off_b", base.Add(time.Minute))
	enqueueVente(t, s, "off_c", base.Add(2*time.Minute))

	res, err := engine.SyncFull(ctx)
	if err != nil {
		t.Fatalf("SyncFull failed: %v", err)
	}

	if res.Total != 3 || res.Confirmed != 3 || res.Failed != 0 || !res.Clean {
		t.Errorf("unexpected result: %+v", res)
	}

	calls := remote.ventesSubmitted()
	want := []string{"off_a", "off_b", "off_c"}
	if len(calls) != len(want) {
		t.Fatalf("expected %d submissions, got %d", len(want), len(calls))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("submission %d: expected %s, got %s", i, want[i], calls[i])
		}
	}

	pending, failed, err := s.CountPendingVentes(ctx)
	if err != nil {
		t.Fatalf("failed to count queue: %v", err)
	}
	if pending != 0 || failed != 0 {
		t.Errorf("expected empty queue, got %d pending, %d failed", pending, failed)
	}

	// Confirmed sales land in the local synced cache.
	synced, err := s.ListVentesSynced(ctx)
	if err != nil {
		t.Fatalf("failed to list synced: %v", err)
	}
	if len(synced) != 3 {
		t.Errorf("expected 3 synced ventes, got %d", len(synced))
	}

	last, err := s.LastSync(ctx)
	if err != nil {
		t.Fatalf("failed to read last_sync: %v", err)
	}
	if last.IsZero() {
		t.Error("expected last_sync to advance after a clean pass")
	}
}

func TestValidationFailureDoesNotBlockSiblings(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx := context.Background()

	base := time.Now().UTC()
	enqueueVente(t, s, "off_a", base)
	enqueueVente(t, s, "off_b", base.Add(time.Second))
	enqueueVente(t, s, "off_c", base.Add(2*time.Second))

	remote.venteErr = func(offlineID string) error {
		if offlineID == "off_b" {
			return validationErr("quantite exceeds stock")
		}
		return nil
	}

	res, err := engine.SyncFull(ctx)
	if err != nil {
		t.Fatalf("SyncFull failed: %v", err)
	}
	if res.Confirmed != 2 || res.Failed != 1 {
		t.Errorf("expected 2 confirmed, 1 failed; got %+v", res)
	}
	if !res.Clean {
		t.Error("validation failures alone must not mark the pass unclean")
	}

	ventes, err := s.ListPendingVentes(ctx)
	if err != nil {
		t.Fatalf("failed to list queue: %v", err)
	}
	if len(ventes) != 1 {
		t.Fatalf("expected only the rejected entry to remain, got %d", len(ventes))
	}
	if ventes[0].OfflineID != "off_b" || ventes[0].Status != model.StatusFailed {
		t.Errorf("unexpected survivor: %+v", ventes[0])
	}
	if ventes[0].LastError != validationErr("quantite exceeds stock").Error() {
		t.Errorf("expected server diagnostic recorded, got %q", ventes[0].LastError)
	}

	// Validation failures do not hold back the last-sync marker; the
	// entry waits for operator review, not for connectivity.
	last, err := s.LastSync(ctx)
	if err != nil {
		t.Fatalf("failed to read last_sync: %v", err)
	}
	if last.IsZero() {
		t.Error("expected last_sync to advance")
	}
}

func TestConnectivityFailureHaltsDrain(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx := context.Background()

	base := time.Now().UTC()
	enqueueVente(t, s, "off_a", base)
	enqueueVente(t, s, "off_b", base.Add(time.Second))
	enqueueVente(t, s, "off_c", base.Add(2*time.Second))

	remote.venteErr = func(offlineID string) error {
		if offlineID == "off_b" {
			return connectivityErr()
		}
		return nil
	}

	res, err := engine.SyncFull(ctx)
	if err != nil {
		t.Fatalf("SyncFull failed: %v", err)
	}
	if res.Confirmed != 1 || res.Failed != 1 || res.Clean {
		t.Errorf("unexpected result: %+v", res)
	}

	// off_c must never have been attempted after the halt.
	calls := remote.ventesSubmitted()
	if len(calls) != 2 || calls[0] != "off_a" || calls[1] != "off_b" {
		t.Errorf("expected drain to stop after off_b, got %v", calls)
	}

	ventes, err := s.ListPendingVentes(ctx)
	if err != nil {
		t.Fatalf("failed to list queue: %v", err)
	}
	if len(ventes) != 2 {
		t.Fatalf("expected off_b and off_c to remain, got %d entries", len(ventes))
	}
	if ventes[0].OfflineID != "off_b" || ventes[0].Status != model.StatusFailed {
		t.Errorf("expected off_b FAILED, got %+v", ventes[0])
	}
	if ventes[1].OfflineID != "off_c" || ventes[1].Status != model.StatusPending {
		t.Errorf("expected off_c untouched, got %+v", ventes[1])
	}

	// An interrupted pass must not advance the sync marker.
	last, err := s.LastSync(ctx)
	if err != nil {
		t.Fatalf("failed to read last_sync: %v", err)
	}
	if !last.IsZero() {
		t.Error("expected last_sync to stay unset after a partial pass")
	}

	// Connectivity is restored; the next pass drains the survivors.
	remote.mu.Lock()
	remote.venteErr = nil
	remote.venteCalls = nil
	remote.mu.Unlock()

	res, err = engine.SyncFull(ctx)
	if err != nil {
		t.Fatalf("second SyncFull failed: %v", err)
	}
	if res.Confirmed != 2 || !res.Clean {
		t.Errorf("unexpected second-pass result: %+v", res)
	}

	calls = remote.ventesSubmitted()
	if len(calls) != 2 || calls[0] != "off_b" || calls[1] != "off_c" {
		t.Errorf("expected only survivors resubmitted in order, got %v", calls)
	}

	pending, failed, err := s.CountPendingVentes(ctx)
	if err != nil {
		t.Fatalf("failed to count queue: %v", err)
	}
	if pending != 0 || failed != 0 {
		t.Errorf("expected empty queue after recovery, got %d pending, %d failed", pending, failed)
	}
}

func TestAuthFailureAbortsPass(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx := context.Background()

	enqueueVente(t, s, "off_a", time.Now().UTC())
	remote.produitsErr = authErr()

	res, err := engine.SyncFull(ctx)
	if err != nil {
		t.Fatalf("SyncFull failed: %v", err)
	}
	if res.Clean {
		t.Error("expected unclean result after auth failure")
	}

	// No queue submissions after a fatal auth failure.
	if calls := remote.ventesSubmitted(); len(calls) != 0 {
		t.Errorf("expected no submissions, got %v", calls)
	}

	last, err := s.LastSync(ctx)
	if err != nil {
		t.Fatalf("failed to read last_sync: %v", err)
	}
	if !last.IsZero() {
		t.Error("expected last_sync to stay unset after auth failure")
	}
}

func TestCatalogRefreshErrorIsolated(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx := context.Background()

	remote.produits = []*model.Produit{
		{ID: 1, Nom: "Savon", PrixUnitaire: 500, Quantite: 10, BoutiqueID: 1},
	}
	remote.clientsErr = connectivityErr()
	enqueueVente(t, s, "off_a", time.Now().UTC())

	res, err := engine.SyncFull(ctx)
	if err != nil {
		t.Fatalf("SyncFull failed: %v", err)
	}

	// A down clients endpoint must not stop the sales drain or the
	// produits refresh.
	if res.Confirmed != 1 {
		t.Errorf("expected sale confirmed despite client refresh failure, got %+v", res)
	}
	count, err := s.CountProduits(ctx)
	if err != nil {
		t.Fatalf("failed to count produits: %v", err)
	}
	if count != 1 {
		t.Errorf("expected produits refreshed, got %d", count)
	}
	if res.Clean {
		t.Error("expected unclean result so last_sync is held back")
	}
}

func TestSyncFullRefreshesCatalogs(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx := context.Background()

	// Seed a stale catalog; the pass replaces it wholesale.
	stale := []*model.Produit{{ID: 9, Nom: "Obsolete", PrixUnitaire: 1, BoutiqueID: 1}}
	if err := s.ReplaceProduits(ctx, stale); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}

	remote.produits = []*model.Produit{
		{ID: 1, Nom: "Savon", PrixUnitaire: 500, Quantite: 10, BoutiqueID: 1},
		{ID: 2, Nom: "Riz", PrixUnitaire: 1200, Quantite: 4, BoutiqueID: 1},
	}
	remote.clients = []*model.Client{{ID: 1, Nom: "Mbarga"}}

	if _, err := engine.SyncFull(ctx); err != nil {
		t.Fatalf("SyncFull failed: %v", err)
	}

	produits, err := s.ListProduits(ctx)
	if err != nil {
		t.Fatalf("failed to list produits: %v", err)
	}
	if len(produits) != 2 {
		t.Fatalf("expected 2 produits after refresh, got %d", len(produits))
	}
	for _, p := range produits {
		if p.Nom == "Obsolete" {
			t.Error("expected stale row to be replaced")
		}
	}

	clients, err := s.ListClients(ctx)
	if err != nil {
		t.Fatalf("failed to list clients: %v", err)
	}
	if len(clients) != 1 {
		t.Errorf("expected 1 client after refresh, got %d", len(clients))
	}
}

func TestIdleConvergence(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx := context.Background()

	res, err := engine.SyncFull(ctx)
	if err != nil {
		t.Fatalf("SyncFull failed: %v", err)
	}
	if res.Total != 0 || !res.Clean {
		t.Errorf("unexpected result on empty queues: %+v", res)
	}

	// A second idle pass converges without churning the backend.
	if _, err := engine.SyncFull(ctx); err != nil {
		t.Fatalf("second SyncFull failed: %v", err)
	}
	if calls := remote.ventesSubmitted(); len(calls) != 0 {
		t.Errorf("expected no submissions on idle passes, got %v", calls)
	}

	last, err := s.LastSync(ctx)
	if err != nil {
		t.Fatalf("failed to read last_sync: %v", err)
	}
	if last.IsZero() {
		t.Error("expected last_sync to advance on idle clean passes")
	}
}

func TestProgressEvents(t *testing.T) {
	engine, s, _ := setupTest(t)
	ctx := context.Background()

	enqueueVente(t, s, "off_1", time.Now().UTC())

	events, cancel := engine.Notifier().Subscribe()
	defer cancel()

	if _, err := engine.SyncFull(ctx); err != nil {
		t.Fatalf("SyncFull failed: %v", err)
	}

	var got []progress.Event
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			if ev.Status == progress.StatusComplete || ev.Status == progress.StatusError {
				goto done
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for progress events")
		}
	}
done:

	if got[0].Status != progress.StatusSyncing || got[0].Total != 1 {
		t.Errorf("unexpected start event: %+v", got[0])
	}
	final := got[len(got)-1]
	if final.Status != progress.StatusComplete {
		t.Errorf("expected complete status, got %s", final.Status)
	}
	if final.SyncedCount != 1 {
		t.Errorf("expected synced_count 1, got %d", final.SyncedCount)
	}
}

func TestOverlappingPassesCoalesce(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx := context.Background()

	enqueueVente(t, s, "off_1", time.Now().UTC())

	release := make(chan struct{})
	remote.release = release

	var wg stdsync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := engine.SyncFull(ctx); err != nil {
			t.Errorf("blocked SyncFull failed: %v", err)
		}
	}()

	// Wait until the first pass is inside the remote call.
	deadline := time.After(2 * time.Second)
	for len(remote.ventesSubmitted()) == 0 {
		select {
		case <-deadline:
			close(release)
			t.Fatal("first pass never reached the backend")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := engine.SyncFull(ctx); !errors.Is(err, ErrSyncInFlight) {
		t.Errorf("expected ErrSyncInFlight for overlapping request, got %v", err)
	}

	close(release)
	wg.Wait()

	// The single pass drained the entry exactly once.
	if calls := remote.ventesSubmitted(); len(calls) != 1 {
		t.Errorf("expected exactly one submission, got %v", calls)
	}
}

func TestRefreshCataloguesStandalone(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx := context.Background()

	remote.produits = []*model.Produit{
		{ID: 1, Nom: "Savon", PrixUnitaire: 500, Quantite: 10, BoutiqueID: 1},
	}
	enqueueVente(t, s, "off_untouched", time.Now().UTC())

	if err := engine.RefreshCatalogues(ctx); err != nil {
		t.Fatalf("RefreshCatalogues failed: %v", err)
	}

	count, err := s.CountProduits(ctx)
	if err != nil {
		t.Fatalf("failed to count produits: %v", err)
	}
	if count != 1 {
		t.Errorf("expected catalog refreshed, got %d produits", count)
	}

	// The queues are not drained by a catalog-only refresh.
	if calls := remote.ventesSubmitted(); len(calls) != 0 {
		t.Errorf("expected no queue submissions, got %v", calls)
	}

	remote.mu.Lock()
	remote.produitsErr = connectivityErr()
	remote.mu.Unlock()
	if err := engine.RefreshCatalogues(ctx); err == nil {
		t.Error("expected error when a catalog endpoint is down")
	}
}

func TestSyncPendingDepenses(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx := context.Background()

	base := time.Now().UTC()
	enqueueDepense(t, s, "off_d1", base)
	enqueueDepense(t, s, "off_d2", base.Add(time.Second))
	remote.depenseErr = func(offlineID string) error {
		if offlineID == "off_d2" {
			return validationErr("categorie inconnue")
		}
		return nil
	}

	res, err := engine.SyncPendingDepenses(ctx)
	if err != nil {
		t.Fatalf("SyncPendingDepenses failed: %v", err)
	}
	if res.Confirmed != 1 || res.Failed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	pending, failed, err := s.CountPendingDepenses(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if pending != 0 || failed != 1 {
		t.Errorf("expected 0 pending, 1 failed; got %d, %d", pending, failed)
	}
}

func TestStartAutoSyncRunsPasses(t *testing.T) {
	engine, s, remote := setupTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enqueueVente(t, s, "off_1", time.Now().UTC())

	engine.StartAutoSync(ctx, 20*time.Millisecond)
	defer engine.StopAutoSync()

	deadline := time.After(2 * time.Second)
	for len(remote.ventesSubmitted()) == 0 {
		select {
		case <-deadline:
			t.Fatal("auto-sync never ran a pass")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
