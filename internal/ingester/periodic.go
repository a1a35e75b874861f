package ingester

import (
	"context"
	"log"
	"time"
)

// Periodic adapts a run-once function into a supervised Worker executing
// it on a fixed interval. Errors are logged and retried next tick.
type Periodic struct {
	name     string
	interval time.Duration
	fn       func(context.Context) error
}

func NewPeriodic(name string, interval time.Duration, fn func(context.Context) error) *Periodic {
	return &Periodic{name: name, interval: interval, fn: fn}
}

func (p *Periodic) Name() string { return p.name }

func (p *Periodic) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Run once immediately on startup.
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Periodic) tick(ctx context.Context) {
	if err := p.fn(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[%s] %v", p.name, err)
	}
}
