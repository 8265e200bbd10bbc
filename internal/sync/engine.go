package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/api"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/metrics"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/model"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/progress"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/store"
)

// ErrSyncInFlight is returned when a pass is requested while another
// is running. Overlapping requests are coalesced into a no-op; the
// running pass will pick up the same queue entries.
var ErrSyncInFlight = errors.New("sync pass already in flight")

// RemoteAPI is the slice of the REST client the engine consumes.
// Declared here so tests can substitute a fake backend.
type RemoteAPI interface {
	CreateVente(ctx context.Context, v *model.VentePending) (*model.Vente, error)
	CreateDepense(ctx context.Context, d *model.DepensePending) (*model.Depense, error)
	ListProduits(ctx context.Context) ([]*model.Produit, error)
	ListClients(ctx context.Context) ([]*model.Client, error)
}

// Config holds engine configuration.
type Config struct {
	// RequestTimeout bounds each individual remote call in a pass.
	// A timed-out call counts as a connectivity failure.
	RequestTimeout time.Duration

	// Notifier receives progress events. If nil, a private notifier is
	// created (events go nowhere until someone subscribes).
	Notifier *progress.Notifier

	// Logger for engine activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: 15 * time.Second,
		Logger:         log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Result summarizes a sync pass.
type Result struct {
	// Total is the number of queue entries eligible at pass start.
	Total int
	// Confirmed is the number of entries the server acknowledged.
	Confirmed int
	// Failed is the number of entries marked FAILED this pass.
	Failed int
	// Clean is true when the pass saw no connectivity or auth failure;
	// only clean passes advance the last-sync timestamp.
	Clean bool
}

// Engine orchestrates queue drains and catalog refreshes.
//
// All collaborators are passed in explicitly; the engine holds no
// global state, so tests wire it with fakes.
type Engine struct {
	store    *store.Store
	remote   RemoteAPI
	notifier *progress.Notifier
	logger   *log.Logger
	timeout  time.Duration

	// inFlight serializes passes: a buffered slot acts as a try-lock
	// so an overlapping request coalesces instead of racing on the
	// same queue entries.
	inFlight chan struct{}

	autoMu     stdsync.Mutex
	autoCancel context.CancelFunc
	autoWg     stdsync.WaitGroup
}

// New creates a sync engine over the given store and remote API.
func New(st *store.Store, remote RemoteAPI, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if config.Notifier == nil {
		config.Notifier = progress.NewNotifier()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}

	return &Engine{
		store:    st,
		remote:   remote,
		notifier: config.Notifier,
		logger:   config.Logger,
		timeout:  config.RequestTimeout,
		inFlight: make(chan struct{}, 1),
	}
}

// Notifier returns the engine's progress notifier so observers
// (dashboard, CLI) can subscribe.
func (e *Engine) Notifier() *progress.Notifier {
	return e.notifier
}

// tryAcquire takes the in-flight slot without blocking.
func (e *Engine) tryAcquire() bool {
	select {
	case e.inFlight <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *Engine) release() {
	<-e.inFlight
}

// passState tracks progress counters for one pass and publishes
// events as entries are processed.
type passState struct {
	notifier *progress.Notifier
	total    int
	current  int
	synced   int
}

func (p *passState) start() {
	p.notifier.Publish(progress.Event{
		Status: progress.StatusSyncing,
		Total:  p.total,
	})
}

func (p *passState) step(confirmed bool, msg string) {
	p.current++
	if confirmed {
		p.synced++
	}
	p.notifier.Publish(progress.Event{
		Status:      progress.StatusSyncing,
		Current:     p.current,
		Total:       p.total,
		SyncedCount: p.synced,
		Message:     msg,
	})
}

func (p *passState) finish(status progress.Status, msg string) {
	p.notifier.Publish(progress.Event{
		Status:      status,
		Current:     p.current,
		Total:       p.total,
		SyncedCount: p.synced,
		Message:     msg,
	})
}

// SyncFull runs one complete pass: catalog refresh, then both queue
// drains, then the last-sync bookkeeping. Returns ErrSyncInFlight when
// a pass is already running.
func (e *Engine) SyncFull(ctx context.Context) (*Result, error) {
	if !e.tryAcquire() {
		return nil, ErrSyncInFlight
	}
	defer e.release()

	started := time.Now()
	e.logger.Printf("Starting full sync")

	ventes, err := e.store.ListPendingVentes(ctx)
	if err != nil {
		return e.failToStart(fmt.Errorf("failed to read pending ventes: %w", err))
	}
	depenses, err := e.store.ListPendingDepenses(ctx)
	if err != nil {
		return e.failToStart(fmt.Errorf("failed to read pending depenses: %w", err))
	}

	ps := &passState{notifier: e.notifier, total: len(ventes) + len(depenses)}
	ps.start()

	res := &Result{Total: ps.total, Clean: true}

	// Catalog refresh first so queue drains run against fresh data.
	// Each endpoint is isolated: a down clients endpoint must not
	// abort sales syncing.
	authFailed := e.refreshCatalogues(ctx, res)

	if !authFailed {
		authFailed = e.drainVentes(ctx, ventes, ps, res)
	}
	if !authFailed {
		e.drainDepenses(ctx, depenses, ps, res)
	}

	res.Confirmed = ps.synced

	outcome := "complete"
	status := progress.StatusComplete
	msg := ""
	if !res.Clean {
		outcome = "partial"
		status = progress.StatusError
		msg = "sync incomplete; remaining entries retry next pass"
	}

	if res.Clean {
		if err := e.store.SetLastSync(ctx, time.Now()); err != nil {
			e.logger.Printf("WARNING: failed to record last_sync: %v", err)
		} else {
			metrics.LastSyncTimestamp.SetToCurrentTime()
		}
	}

	metrics.SyncPasses.WithLabelValues(outcome).Inc()
	ps.finish(status, msg)

	e.logger.Printf("Full sync %s in %v: confirmed=%d failed=%d total=%d",
		outcome, time.Since(started).Round(time.Millisecond),
		res.Confirmed, res.Failed, res.Total)

	return res, nil
}

// failToStart reports a pass that could not begin at all (store
// unavailable or unreadable).
func (e *Engine) failToStart(err error) (*Result, error) {
	e.logger.Printf("ERROR: sync pass could not start: %v", err)
	e.notifier.Publish(progress.Event{
		Status:  progress.StatusError,
		Message: err.Error(),
	})
	metrics.SyncPasses.WithLabelValues("error").Inc()
	return nil, err
}

// SyncPendingVentes drains only the sales queue. Serialized against
// full passes through the same in-flight guard.
func (e *Engine) SyncPendingVentes(ctx context.Context) (*Result, error) {
	if !e.tryAcquire() {
		return nil, ErrSyncInFlight
	}
	defer e.release()

	ventes, err := e.store.ListPendingVentes(ctx)
	if err != nil {
		return e.failToStart(fmt.Errorf("failed to read pending ventes: %w", err))
	}

	ps := &passState{notifier: e.notifier, total: len(ventes)}
	ps.start()

	res := &Result{Total: ps.total, Clean: true}
	e.drainVentes(ctx, ventes, ps, res)
	res.Confirmed = ps.synced

	if res.Clean {
		ps.finish(progress.StatusComplete, "")
	} else {
		ps.finish(progress.StatusError, "drain halted; remaining entries retry next pass")
	}
	return res, nil
}

// SyncPendingDepenses drains only the expense queue.
func (e *Engine) SyncPendingDepenses(ctx context.Context) (*Result, error) {
	if !e.tryAcquire() {
		return nil, ErrSyncInFlight
	}
	defer e.release()

	depenses, err := e.store.ListPendingDepenses(ctx)
	if err != nil {
		return e.failToStart(fmt.Errorf("failed to read pending depenses: %w", err))
	}

	ps := &passState{notifier: e.notifier, total: len(depenses)}
	ps.start()

	res := &Result{Total: ps.total, Clean: true}
	e.drainDepenses(ctx, depenses, ps, res)
	res.Confirmed = ps.synced

	if res.Clean {
		ps.finish(progress.StatusComplete, "")
	} else {
		ps.finish(progress.StatusError, "drain halted; remaining entries retry next pass")
	}
	return res, nil
}

// RefreshCatalogues pulls only the catalogs, without touching the
// queues. Serialized against full passes through the same guard.
func (e *Engine) RefreshCatalogues(ctx context.Context) error {
	if !e.tryAcquire() {
		return ErrSyncInFlight
	}
	defer e.release()

	res := &Result{Clean: true}
	e.refreshCatalogues(ctx, res)
	if !res.Clean {
		return fmt.Errorf("catalog refresh incomplete")
	}
	return nil
}

// refreshCatalogues pulls the authoritative product and client
// catalogs and overwrites the local caches. Returns true when an auth
// failure means the pass must stop making network calls.
func (e *Engine) refreshCatalogues(ctx context.Context, res *Result) (authFailed bool) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	produits, err := e.remote.ListProduits(callCtx)
	cancel()
	switch {
	case err == nil:
		if err := e.store.ReplaceProduits(ctx, produits); err != nil {
			e.logger.Printf("WARNING: failed to store produits: %v", err)
			metrics.CatalogRefreshes.WithLabelValues("produits", "error").Inc()
		} else {
			metrics.CatalogRefreshes.WithLabelValues("produits", "ok").Inc()
			e.logger.Printf("Refreshed produits catalog: %d items", len(produits))
		}
	case api.IsAuth(err):
		e.logger.Printf("ERROR: auth failure refreshing produits, aborting pass: %v", err)
		res.Clean = false
		return true
	default:
		e.logger.Printf("WARNING: failed to refresh produits: %v", err)
		metrics.CatalogRefreshes.WithLabelValues("produits", "error").Inc()
		res.Clean = false
	}

	callCtx, cancel = context.WithTimeout(ctx, e.timeout)
	clients, err := e.remote.ListClients(callCtx)
	cancel()
	switch {
	case err == nil:
		if err := e.store.ReplaceClients(ctx, clients); err != nil {
			e.logger.Printf("WARNING: failed to store clients: %v", err)
			metrics.CatalogRefreshes.WithLabelValues("clients", "error").Inc()
		} else {
			metrics.CatalogRefreshes.WithLabelValues("clients", "ok").Inc()
			e.logger.Printf("Refreshed clients catalog: %d items", len(clients))
		}
	case api.IsAuth(err):
		e.logger.Printf("ERROR: auth failure refreshing clients, aborting pass: %v", err)
		res.Clean = false
		return true
	default:
		e.logger.Printf("WARNING: failed to refresh clients: %v", err)
		metrics.CatalogRefreshes.WithLabelValues("clients", "error").Inc()
		res.Clean = false
	}

	return false
}

// drainVentes submits pending sales oldest-first. Returns true when an
// auth failure means the pass must stop making network calls.
func (e *Engine) drainVentes(ctx context.Context, ventes []*model.VentePending, ps *passState, res *Result) (authFailed bool) {
	for _, v := range ventes {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		created, err := e.remote.CreateVente(callCtx, v)
		cancel()

		if err == nil {
			if err := e.store.ConfirmVente(ctx, v.OfflineID); err != nil {
				// The server applied the sale but the local delete
				// failed; the retry next pass resends the same
				// offline_id and the server deduplicates it.
				e.logger.Printf("WARNING: failed to confirm vente %s locally: %v", v.OfflineID, err)
				ps.step(false, "")
				continue
			}
			if err := e.store.PutVenteSynced(ctx, created); err != nil {
				e.logger.Printf("WARNING: failed to cache synced vente %d: %v", created.ID, err)
			}
			metrics.EntriesConfirmed.WithLabelValues("vente").Inc()
			ps.step(true, "")
			continue
		}

		switch {
		case api.IsAuth(err):
			e.logger.Printf("ERROR: auth failure draining ventes, aborting pass: %v", err)
			metrics.EntriesFailed.WithLabelValues("vente", "auth").Inc()
			res.Clean = false
			return true

		case api.IsValidation(err):
			e.logger.Printf("WARNING: vente %s rejected: %v", v.OfflineID, err)
			if markErr := e.store.MarkVenteFailed(ctx, v.OfflineID, err.Error()); markErr != nil {
				e.logger.Printf("WARNING: failed to mark vente %s: %v", v.OfflineID, markErr)
			}
			metrics.EntriesFailed.WithLabelValues("vente", "validation").Inc()
			res.Failed++
			ps.step(false, err.Error())

		default:
			e.logger.Printf("WARNING: connectivity failure on vente %s, halting drain: %v", v.OfflineID, err)
			if markErr := e.store.MarkVenteFailed(ctx, v.OfflineID, err.Error()); markErr != nil {
				e.logger.Printf("WARNING: failed to mark vente %s: %v", v.OfflineID, markErr)
			}
			metrics.EntriesFailed.WithLabelValues("vente", "connectivity").Inc()
			res.Failed++
			res.Clean = false
			ps.step(false, err.Error())
			return false
		}
	}
	return false
}

// drainDepenses submits pending expenses oldest-first.
func (e *Engine) drainDepenses(ctx context.Context, depenses []*model.DepensePending, ps *passState, res *Result) (authFailed bool) {
	for _, d := range depenses {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		_, err := e.remote.CreateDepense(callCtx, d)
		cancel()

		if err == nil {
			if err := e.store.ConfirmDepense(ctx, d.OfflineID); err != nil {
				e.logger.Printf("WARNING: failed to confirm depense %s locally: %v", d.OfflineID, err)
				ps.step(false, "")
				continue
			}
			metrics.EntriesConfirmed.WithLabelValues("depense").Inc()
			ps.step(true, "")
			continue
		}

		switch {
		case api.IsAuth(err):
			e.logger.Printf("ERROR: auth failure draining depenses, aborting pass: %v", err)
			metrics.EntriesFailed.WithLabelValues("depense", "auth").Inc()
			res.Clean = false
			return true

		case api.IsValidation(err):
			e.logger.Printf("WARNING: depense %s rejected: %v", d.OfflineID, err)
			if markErr := e.store.MarkDepenseFailed(ctx, d.OfflineID, err.Error()); markErr != nil {
				e.logger.Printf("WARNING: failed to mark depense %s: %v", d.OfflineID, markErr)
			}
			metrics.EntriesFailed.WithLabelValues("depense", "validation").Inc()
			res.Failed++
			ps.step(false, err.Error())

		default:
			e.logger.Printf("WARNING: connectivity failure on depense %s, halting drain: %v", d.OfflineID, err)
			if markErr := e.store.MarkDepenseFailed(ctx, d.OfflineID, err.Error()); markErr != nil {
				e.logger.Printf("WARNING: failed to mark depense %s: %v", d.OfflineID, markErr)
			}
			metrics.EntriesFailed.WithLabelValues("depense", "connectivity").Inc()
			res.Failed++
			res.Clean = false
			ps.step(false, err.Error())
			return false
		}
	}
	return false
}

// StartAutoSync schedules SyncFull on a fixed interval. Re-invoking
// resets the schedule instead of stacking timers. The loop stops when
// ctx is cancelled or StopAutoSync is called.
func (e *Engine) StartAutoSync(ctx context.Context, interval time.Duration) {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()

	if e.autoCancel != nil {
		e.autoCancel()
		e.autoWg.Wait()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.autoCancel = cancel

	e.autoWg.Add(1)
	go func() {
		defer e.autoWg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		e.logger.Printf("Auto-sync started (every %v)", interval)
		for {
			select {
			case <-loopCtx.Done():
				e.logger.Printf("Auto-sync stopped")
				return
			case <-ticker.C:
				if _, err := e.SyncFull(loopCtx); err != nil && !errors.Is(err, ErrSyncInFlight) {
					e.logger.Printf("WARNING: scheduled sync failed: %v", err)
				}
			}
		}
	}()
}

// StopAutoSync cancels the auto-sync schedule. Safe to call when no
// schedule is active.
func (e *Engine) StopAutoSync() {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()

	if e.autoCancel != nil {
		e.autoCancel()
		e.autoWg.Wait()
		e.autoCancel = nil
	}
}
