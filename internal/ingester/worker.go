// Package ingester holds the background workers: the Torii pollers, the
// derivers and the supervisor that keeps them running.
package ingester

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

const restartDelay = 5 * time.Second

// Worker is a long-running loop. Run must return promptly after ctx is
// cancelled.
type Worker interface {
	Name() string
	Run(ctx context.Context)
}

// Supervisor owns the worker goroutines. A worker that panics or returns
// early is restarted after a short delay; cancellation of the parent
// context stops everything.
type Supervisor struct {
	workers []Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewSupervisor(workers ...Worker) *Supervisor {
	return &Supervisor{workers: workers}
}

func (s *Supervisor) Add(w Worker) {
	s.workers = append(s.workers, w)
}

// Start launches every worker. It does not block.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w Worker) {
			defer s.wg.Done()
			s.supervise(ctx, w)
		}(w)
	}
	log.Printf("[supervisor] started %d workers", len(s.workers))
}

// Stop cancels the workers and waits for them to return.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Println("[supervisor] all workers stopped")
}

func (s *Supervisor) supervise(ctx context.Context, w Worker) {
	for {
		runRecovered(ctx, w)
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
			log.Printf("[supervisor] restarting %s", w.Name())
		}
	}
}

func runRecovered(ctx context.Context, w Worker) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[supervisor] %s panicked: %v\n%s", w.Name(), r, debug.Stack())
		}
	}()
	w.Run(ctx)
}
