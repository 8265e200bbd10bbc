// Package netmon observes backend reachability for the sync core.
//
// The monitor probes the backend on a fixed interval and fires
// edge-triggered callbacks on state transitions: exactly one callback
// per transition, never a duplicate for a repeated probe result. It
// makes no sync decisions itself; the caller wires the online
// transition to a sync pass, keeping detection and reconciliation
// decoupled.
package netmon

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/metrics"
)

// Prober checks whether the backend is reachable. A nil error means
// reachable; any error means offline.
type Prober interface {
	Ping(ctx context.Context) error
}

// Config holds monitor configuration.
type Config struct {
	// Interval between reachability probes.
	Interval time.Duration

	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration

	// OnOnline fires once per offline-to-online transition.
	OnOnline func()

	// OnOffline fires once per online-to-offline transition.
	OnOffline func()

	// Logger for monitor activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:     30 * time.Second,
		ProbeTimeout: 5 * time.Second,
		Logger:       log.New(os.Stderr, "[netmon] ", log.LstdFlags),
	}
}

// Monitor watches connectivity transitions.
type Monitor struct {
	prober Prober
	config *Config

	online atomic.Bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a monitor over the given prober.
func New(prober Prober, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 5 * time.Second
	}

	return &Monitor{
		prober: prober,
		config: config,
	}
}

// Start probes once synchronously to establish the initial state (so
// Online is answerable before the first transition event), then
// watches on the configured interval until ctx is cancelled or Stop is
// called. The initial probe does not fire a transition callback.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true

	m.online.Store(m.probe(ctx))
	m.publishState()
	m.config.Logger.Printf("Initial connectivity state: %s", stateName(m.online.Load()))

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.watch(loopCtx)
}

// Stop halts the probe loop. Safe to call when not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Online reports the last observed state synchronously.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

func (m *Monitor) watch(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.observe(ctx)
		}
	}
}

// observe runs one probe and fires a callback if the state flipped.
func (m *Monitor) observe(ctx context.Context) {
	now := m.probe(ctx)
	was := m.online.Swap(now)
	if was == now {
		return
	}

	m.publishState()
	m.config.Logger.Printf("Connectivity transition: %s -> %s", stateName(was), stateName(now))

	if now {
		if m.config.OnOnline != nil {
			m.config.OnOnline()
		}
	} else {
		if m.config.OnOffline != nil {
			m.config.OnOffline()
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()
	return m.prober.Ping(probeCtx) == nil
}

func (m *Monitor) publishState() {
	if m.online.Load() {
		metrics.Online.Set(1)
	} else {
		metrics.Online.Set(0)
	}
}

func stateName(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
