// Package prices is the price oracle: an Avnu updater and an Ekubo
// fallback feeding a process-local, atomically swapped snapshot, plus a
// recorder that persists periodic history.
package prices

import (
	"sync/atomic"
	"time"
)

// TokenPrice is one entry of a snapshot. Ratio is "1 reference token = X
// of this token"; RatioExact carries the undivided decimal string for
// clients that cannot afford float drift.
type TokenPrice struct {
	Address    string   `json:"address"`
	Symbol     string   `json:"symbol"`
	Ratio      *float64 `json:"ratio"`
	RatioExact *string  `json:"ratio_exact"`
	PriceInUSD *float64 `json:"price_in_usd,omitempty"`
	BestPool   string   `json:"best_pool,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Snapshot maps normalized token addresses to prices. Snapshots are
// immutable once published.
type Snapshot map[string]TokenPrice

// Store holds the current snapshot behind an atomic pointer swap.
// Readers never observe a partial update and never hold a lock.
type Store struct {
	v atomic.Value // Snapshot
}

func NewStore() *Store {
	s := &Store{}
	s.v.Store(Snapshot{})
	return s
}

// Load returns the current snapshot. The returned map must not be
// mutated.
func (s *Store) Load() Snapshot {
	return s.v.Load().(Snapshot)
}

// Swap publishes a full replacement snapshot.
func (s *Store) Swap(next Snapshot) {
	if next == nil {
		next = Snapshot{}
	}
	s.v.Store(next)
}

// Get returns the entry for a normalized address.
func (s *Store) Get(address string) (TokenPrice, bool) {
	p, ok := s.Load()[address]
	return p, ok
}
