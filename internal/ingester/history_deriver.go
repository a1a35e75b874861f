package ingester

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/eventbus"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/metrics"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

const historyCheckpoint = "history_deriver"

// historyStore is the repository surface the history deriver uses.
type historyStore interface {
	GetDeriverCheckpoint(ctx context.Context, name string) (time.Time, models.EventID, error)
	UpdateDeriverCheckpoint(ctx context.Context, name string, at time.Time, id models.EventID) error
	EventsAfter(ctx context.Context, since time.Time, sinceID models.EventID, kinds []models.EventKind, limit int) ([]models.Event, error)
	UpsertHistoricalOpen(ctx context.Context, h models.LandHistorical) error
	OpenHistoricalRows(ctx context.Context, location models.Location) ([]models.LandHistorical, error)
	CloseHistoricalRow(ctx context.Context, id string, closeDate time.Time, reason string, saleToken *models.U256, saleUSD *float64, saleTokenUsed *string) error
	AccumulateHistoricalFlow(ctx context.Context, id string, inflow bool, token string, amount models.U256) error
	GetLand(ctx context.Context, location models.Location) (*models.Land, error)
}

// usdConverter prices a raw token amount in USD; nil when unknown.
type usdConverter interface {
	USDValue(address string, amount models.U256) *float64
}

// HistoryDeriver maintains land_historical: one row per tenure of a land,
// opened on buys and auction wins, closed on sales and nukes, with tax
// flows accumulated per token.
type HistoryDeriver struct {
	store        historyStore
	usd          usdConverter
	wake         <-chan eventbus.Notification
	interval     time.Duration
	defaultToken string
}

var historyKinds = []models.EventKind{
	models.KindAuctionFinished,
	models.KindLandBought,
	models.KindLandNuked,
	models.KindLandTransfer,
}

func NewHistoryDeriver(store historyStore, usd usdConverter, wake <-chan eventbus.Notification, interval time.Duration, defaultToken string) *HistoryDeriver {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HistoryDeriver{
		store:        store,
		usd:          usd,
		wake:         wake,
		interval:     interval,
		defaultToken: models.NormalizeAddress(defaultToken),
	}
}

func (d *HistoryDeriver) Name() string { return "history_deriver" }

func (d *HistoryDeriver) Run(ctx context.Context) {
	log.Printf("[history_deriver] started (interval=%s)", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.process(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("[history_deriver] shutting down")
			return
		case <-ticker.C:
			d.process(ctx)
		case _, ok := <-d.wake:
			if !ok {
				log.Println("[history_deriver] bus closed, shutting down")
				return
			}
			d.process(ctx)
		}
	}
}

func (d *HistoryDeriver) process(ctx context.Context) {
	since, sinceID, err := d.store.GetDeriverCheckpoint(ctx, historyCheckpoint)
	if err != nil {
		log.Printf("[history_deriver] read checkpoint: %v", err)
		metrics.DeriverErrors.WithLabelValues(d.Name()).Inc()
		return
	}

	for {
		events, err := d.store.EventsAfter(ctx, since, sinceID, historyKinds, pnlBatchSize)
		if err != nil {
			log.Printf("[history_deriver] read events: %v", err)
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
			if err := d.apply(ctx, ev); err != nil {
				log.Printf("[history_deriver] %s %s: %v", ev.Kind, ev.ID, err)
				metrics.DeriverErrors.WithLabelValues(d.Name()).Inc()
				return
			}
			// Flow accumulation is not individually idempotent, so the
			// checkpoint advances per event to keep the replay window at
			// one event on crash.
			since, sinceID = ev.At, ev.ID
			if err := d.store.UpdateDeriverCheckpoint(ctx, historyCheckpoint, since, sinceID); err != nil {
				log.Printf("[history_deriver] update checkpoint: %v", err)
				metrics.DeriverErrors.WithLabelValues(d.Name()).Inc()
				return
			}
		}

		if len(events) < pnlBatchSize {
			return
		}
	}
}

func (d *HistoryDeriver) apply(ctx context.Context, ev models.Event) error {
	switch p := ev.Payload.(type) {
	case models.LandBoughtPayload:
		// A zero-address buyer is not a tenure change; open rows stay open.
		if models.IsZeroAddress(p.Buyer) {
			return nil
		}
		token := models.NormalizeAddress(p.TokenUsed)
		if err := d.closeRows(ctx, p.Location, ev.At, models.CloseReasonBought, &p.SoldPrice, &token); err != nil {
			return err
		}
		return d.openRow(ctx, ev, p.Buyer, p.Location, p.SoldPrice, token)
	case models.AuctionFinishedPayload:
		if models.IsZeroAddress(p.Buyer) {
			return nil
		}
		token := models.NormalizeAddress(p.TokenUsed)
		if token == "" || models.IsZeroAddress(token) {
			land, err := d.store.GetLand(ctx, p.Location)
			if err != nil {
				return err
			}
			if land != nil && !models.IsZeroAddress(land.TokenUsed) {
				token = land.TokenUsed
			} else {
				token = d.defaultToken
			}
		}
		// An auction win ends whatever tenure was still open on the cell.
		if err := d.closeRows(ctx, p.Location, ev.At, models.CloseReasonBought, nil, nil); err != nil {
			return err
		}
		return d.openRow(ctx, ev, p.Buyer, p.Location, p.Price, token)
	case models.LandNukedPayload:
		return d.closeRows(ctx, p.Location, ev.At, models.CloseReasonNuked, nil, nil)
	case models.LandTransferPayload:
		if err := d.accumulate(ctx, p.ToLocation, true, p.TokenAddress, p.Amount); err != nil {
			return err
		}
		return d.accumulate(ctx, p.FromLocation, false, p.TokenAddress, p.Amount)
	default:
		return fmt.Errorf("unexpected kind %s", ev.Kind)
	}
}

func (d *HistoryDeriver) openRow(ctx context.Context, ev models.Event, owner string, location models.Location, price models.U256, token string) error {
	if models.IsZeroAddress(owner) {
		return nil
	}
	h := models.LandHistorical{
		ID:           models.HistoricalID(owner, location, ev.At),
		At:           ev.At,
		Owner:        models.NormalizeAddress(owner),
		LandLocation: location,
		TimeBought:   ev.At,
		BuyCostToken: &price,
		BuyCostUSD:   d.usd.USDValue(token, price),
		BuyTokenUsed: &token,
	}
	if err := d.store.UpsertHistoricalOpen(ctx, h); err != nil {
		return fmt.Errorf("open historical row: %w", err)
	}
	return nil
}

func (d *HistoryDeriver) closeRows(ctx context.Context, location models.Location, at time.Time, reason string, saleToken *models.U256, saleTokenUsed *string) error {
	open, err := d.store.OpenHistoricalRows(ctx, location)
	if err != nil {
		return err
	}
	for _, row := range open {
		var saleUSD *float64
		if saleToken != nil && saleTokenUsed != nil {
			saleUSD = d.usd.USDValue(*saleTokenUsed, *saleToken)
		}
		if err := d.store.CloseHistoricalRow(ctx, row.ID, at, reason, saleToken, saleUSD, saleTokenUsed); err != nil {
			return fmt.Errorf("close historical row %s: %w", row.ID, err)
		}
	}
	return nil
}

func (d *HistoryDeriver) accumulate(ctx context.Context, location models.Location, inflow bool, token string, amount models.U256) error {
	open, err := d.store.OpenHistoricalRows(ctx, location)
	if err != nil {
		return err
	}
	for _, row := range open {
		if err := d.store.AccumulateHistoricalFlow(ctx, row.ID, inflow, token, amount); err != nil {
			return fmt.Errorf("accumulate flow on %s: %w", row.ID, err)
		}
	}
	return nil
}
