package ingester

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/eventbus"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/metrics"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/torii"
)

// cursorBuffer is subtracted from the persisted max(at) each poll so that
// same-second events committed after the last poll are re-fetched. The
// unique constraint on event.id absorbs the resulting duplicates.
const cursorBuffer = time.Second

// eventSource is the Torii surface the event ingester polls.
type eventSource interface {
	EventsAfter(ctx context.Context, since time.Time) ([]torii.RawEvent, error)
}

// eventSink is the repository surface the event ingester writes to.
type eventSink interface {
	MaxEventAt(ctx context.Context) (time.Time, error)
	InsertEvent(ctx context.Context, ev models.Event) (bool, error)
	LogIndexingError(ctx context.Context, worker string, eventID models.EventID, errType, message string, payload any) error
}

// EventIngester polls Torii for new world events, persists them in
// canonical form and notifies the derivers.
type EventIngester struct {
	torii    eventSource
	repo     eventSink
	bus      *eventbus.Bus
	interval time.Duration
}

func NewEventIngester(client eventSource, repo eventSink, bus *eventbus.Bus, interval time.Duration) *EventIngester {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &EventIngester{torii: client, repo: repo, bus: bus, interval: interval}
}

func (i *EventIngester) Name() string { return "event_ingester" }

func (i *EventIngester) Run(ctx context.Context) {
	log.Printf("[event_ingester] started (interval=%s)", i.interval)
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	i.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("[event_ingester] shutting down")
			return
		case <-ticker.C:
			i.poll(ctx)
		}
	}
}

func (i *EventIngester) poll(ctx context.Context) {
	since, err := i.repo.MaxEventAt(ctx)
	if err != nil {
		log.Printf("[event_ingester] read cursor: %v", err)
		return
	}
	if !since.IsZero() {
		since = since.Add(-cursorBuffer)
	}

	raws, err := i.torii.EventsAfter(ctx, since)
	if err != nil {
		log.Printf("[event_ingester] fetch events: %v", err)
		return
	}
	if len(raws) == 0 {
		return
	}

	// Upstream order is not guaranteed; apply the canonical (at, id)
	// order before persisting.
	sort.Slice(raws, func(a, b int) bool {
		if !raws[a].At.Equal(raws[b].At) {
			return raws[a].At.Before(raws[b].At)
		}
		return raws[a].EventID.Compare(raws[b].EventID) < 0
	})

	for _, raw := range raws {
		if ctx.Err() != nil {
			return
		}
		ev, err := ParseEvent(raw)
		if errors.Is(err, ErrUnknownEvent) {
			continue
		}
		if err != nil {
			log.Printf("[event_ingester] %v", err)
			if logErr := i.repo.LogIndexingError(ctx, i.Name(), raw.EventID, "parse", err.Error(), string(raw.Data)); logErr != nil {
				log.Printf("[event_ingester] record parse error: %v", logErr)
			}
			continue
		}

		inserted, err := i.repo.InsertEvent(ctx, ev)
		if err != nil {
			log.Printf("[event_ingester] insert %s: %v", ev.ID, err)
			continue
		}
		if !inserted {
			metrics.EventsDuplicate.Inc()
			continue
		}
		metrics.EventsIngested.WithLabelValues(string(ev.Kind)).Inc()

		if models.DerivedKinds[ev.Kind] {
			i.bus.Publish(eventbus.Notification{Kind: ev.Kind, EventID: ev.ID, At: ev.At})
		}
	}
}
