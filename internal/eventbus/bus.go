// Package eventbus is the in-process fan-out from the event ingester to
// the derivers. It is a latency optimization, not a correctness path: the
// database is the durable log and every deriver keeps its own cursor, so
// a notification dropped on a slow subscriber only delays that deriver
// until its next poll tick.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/metrics"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// Notification tells a subscriber that a relevant event has been
// committed to the store.
type Notification struct {
	Kind    models.EventKind
	EventID models.EventID
	At      time.Time
}

// Bus routes notifications to subscribers. Safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Notification
	lagged      atomic.Uint64
	closed      bool
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its channel. buffer
// bounds how far a subscriber may lag before notifications are dropped
// for it.
func (b *Bus) Subscribe(buffer int) <-chan Notification {
	ch := make(chan Notification, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish delivers n to every subscriber. A subscriber whose buffer is
// full is lagged: the notification is dropped for it and the lag counter
// incremented. Publish is a no-op after Close.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- n:
		default:
			b.lagged.Add(1)
			metrics.FanoutLagged.Inc()
		}
	}
}

// Lagged returns how many notifications were dropped on full buffers.
func (b *Bus) Lagged() uint64 {
	return b.lagged.Load()
}

// Close marks the bus closed and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
}
