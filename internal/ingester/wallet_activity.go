package ingester

import (
	"context"
	"log"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/eventbus"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/metrics"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

const walletCheckpoint = "wallet_activity"

type walletStore interface {
	GetDeriverCheckpoint(ctx context.Context, name string) (time.Time, models.EventID, error)
	UpdateDeriverCheckpoint(ctx context.Context, name string, at time.Time, id models.EventID) error
	EventsAfter(ctx context.Context, since time.Time, sinceID models.EventID, kinds []models.EventKind, limit int) ([]models.Event, error)
	TouchWalletActivity(ctx context.Context, address string, at time.Time) error
}

// WalletActivityDeriver tracks first/last-seen timestamps and event counts
// per wallet address appearing in player-facing events.
type WalletActivityDeriver struct {
	store    walletStore
	wake     <-chan eventbus.Notification
	interval time.Duration
}

var walletKinds = []models.EventKind{
	models.KindAddStake,
	models.KindAuctionFinished,
	models.KindLandBought,
	models.KindLandNuked,
}

func NewWalletActivityDeriver(store walletStore, wake <-chan eventbus.Notification, interval time.Duration) *WalletActivityDeriver {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &WalletActivityDeriver{store: store, wake: wake, interval: interval}
}

func (d *WalletActivityDeriver) Name() string { return "wallet_activity" }

func (d *WalletActivityDeriver) Run(ctx context.Context) {
	log.Printf("[wallet_activity] started (interval=%s)", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.process(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("[wallet_activity] shutting down")
			return
		case <-ticker.C:
			d.process(ctx)
		case _, ok := <-d.wake:
			if !ok {
				log.Println("[wallet_activity] bus closed, shutting down")
				return
			}
			d.process(ctx)
		}
	}
}

func (d *WalletActivityDeriver) process(ctx context.Context) {
	since, sinceID, err := d.store.GetDeriverCheckpoint(ctx, walletCheckpoint)
	if err != nil {
		log.Printf("[wallet_activity] read checkpoint: %v", err)
		metrics.DeriverErrors.WithLabelValues(d.Name()).Inc()
		return
	}

	for {
		events, err := d.store.EventsAfter(ctx, since, sinceID, walletKinds, pnlBatchSize)
		if err != nil {
			log.Printf("[wallet_activity] read events: %v", err)
			metrics.DeriverErrors.WithLabelValues(d.Name()).Inc()
			return
		}
		if len(events) == 0 {
			return
		}

		for _, ev := range events {
			if ctx.Err() != nil {
				return
			}
			for _, addr := range eventAddresses(ev) {
				if models.IsZeroAddress(addr) {
					continue
				}
				if err := d.store.TouchWalletActivity(ctx, addr, ev.At); err != nil {
					log.Printf("[wallet_activity] touch %s: %v", addr, err)
					metrics.DeriverErrors.WithLabelValues(d.Name()).Inc()
					return
				}
			}
			since, sinceID = ev.At, ev.ID
		}
		if err := d.store.UpdateDeriverCheckpoint(ctx, walletCheckpoint, since, sinceID); err != nil {
			log.Printf("[wallet_activity] update checkpoint: %v", err)
			metrics.DeriverErrors.WithLabelValues(d.Name()).Inc()
			return
		}

		if len(events) < pnlBatchSize {
			return
		}
	}
}

// eventAddresses lists the wallet addresses a player-facing event names.
func eventAddresses(ev models.Event) []string {
	switch p := ev.Payload.(type) {
	case models.AddStakePayload:
		return []string{p.Owner}
	case models.AuctionFinishedPayload:
		return []string{p.Buyer}
	case models.LandBoughtPayload:
		return []string{p.Buyer, p.Seller}
	case models.LandNukedPayload:
		return []string{p.OwnerNuked}
	default:
		return nil
	}
}
