// Package progress provides the notification channel between the sync
// engine and presentation code.
//
// The engine publishes structured events; any number of observers (a
// status widget, the dashboard broadcaster, a logger) subscribe
// independently. This is the only channel from the sync core back to
// UI code.
package progress

import (
	"sync"
)

// Status is the coarse state of a sync pass.
type Status string

const (
	// StatusSyncing is emitted at pass start and once per processed entry.
	StatusSyncing Status = "syncing"
	// StatusComplete is emitted when a pass finishes cleanly.
	StatusComplete Status = "complete"
	// StatusError is emitted when a pass could not start or ended with
	// a connectivity or auth failure.
	StatusError Status = "error"
)

// Event is a single progress report.
//
// Current counts processed entries (confirmed or failed); SyncedCount
// counts only entries actually confirmed by the server, never the
// number attempted.
type Event struct {
	Status      Status `json:"status"`
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	SyncedCount int    `json:"synced_count"`
	Message     string `json:"message,omitempty"`
}

// Notifier fans progress events out to subscribers.
//
// Publishing never blocks the sync pass: a subscriber that stops
// draining its channel loses events rather than stalling the engine.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers an observer. The returned cancel function
// removes the subscription and closes the channel; it is idempotent.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan Event, 64)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than block the pass.
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
