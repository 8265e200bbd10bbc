// Package metrics exposes Prometheus collectors for sync outcomes.
// The dashboard serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncPasses counts sync passes by outcome ("complete", "partial",
	// "error").
	SyncPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gvsync",
		Name:      "sync_passes_total",
		Help:      "Number of sync passes, labelled by outcome.",
	}, []string{"outcome"})

	// EntriesConfirmed counts queue entries confirmed by the server,
	// labelled by kind ("vente", "depense").
	EntriesConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gvsync",
		Name:      "entries_confirmed_total",
		Help:      "Number of pending entries confirmed by the server.",
	}, []string{"kind"})

	// EntriesFailed counts submission failures by kind and error class
	// ("connectivity", "validation", "auth").
	EntriesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gvsync",
		Name:      "entries_failed_total",
		Help:      "Number of failed submission attempts.",
	}, []string{"kind", "class"})

	// CatalogRefreshes counts catalog refresh attempts by collection
	// and result ("ok", "error").
	CatalogRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gvsync",
		Name:      "catalog_refreshes_total",
		Help:      "Number of catalog refresh attempts.",
	}, []string{"collection", "result"})

	// LastSyncTimestamp is the unix time of the last fully successful
	// sync pass.
	LastSyncTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gvsync",
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix timestamp of the last fully successful sync pass.",
	})

	// Online reflects the connectivity monitor's current state.
	Online = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gvsync",
		Name:      "online",
		Help:      "1 when the backend is reachable, 0 otherwise.",
	})
)
