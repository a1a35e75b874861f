package ingester

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/eventbus"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/metrics"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

const (
	pnlBatchSize = 500
	// A failing event is retried this many times before it is recorded in
	// indexing_errors and skipped, so one poison event cannot stall the
	// cursor forever.
	pnlMaxAttempts = 3
)

// positionStore is the slice of the repository the deriver touches,
// narrowed for tests.
type positionStore interface {
	GetPnlCursor(ctx context.Context) (models.PnlCursor, error)
	UpdatePnlCursor(ctx context.Context, c models.PnlCursor) error
	EventsAfter(ctx context.Context, since time.Time, sinceID models.EventID, kinds []models.EventKind, limit int) ([]models.Event, error)
	PositionLogExists(ctx context.Context, eventID models.EventID) (bool, error)
	GetActivePosition(ctx context.Context, owner string, location models.Location) (*models.LandPosition, error)
	CreatePosition(ctx context.Context, p models.LandPosition, logEntry models.PositionEventLog) error
	ClosePosition(ctx context.Context, positionID string, exitPrice, stakeRefunded models.U256, exitType string, at time.Time, eventID models.EventID, logEntry models.PositionEventLog) error
	SetInitialStake(ctx context.Context, positionID string, amount models.U256, logEntry models.PositionEventLog) error
	AddStakeToPosition(ctx context.Context, positionID string, amount models.U256, logEntry models.PositionEventLog) error
	AddTaxEarned(ctx context.Context, positionID, token string, amount models.U256, logEntry models.PositionEventLog) error
	AddTaxPaid(ctx context.Context, positionID string, amount models.U256, logEntry models.PositionEventLog) error
	GetLand(ctx context.Context, location models.Location) (*models.Land, error)
	GetLandStake(ctx context.Context, location models.Location) (*models.LandStake, error)
	LogIndexingError(ctx context.Context, worker string, eventID models.EventID, errType, message string, payload any) error
}

// PnlDeriver folds the ordered event log into land positions. It is
// cursor-driven: bus notifications only wake it up early, correctness
// comes from replaying `event` in (at, id) order.
type PnlDeriver struct {
	store        positionStore
	wake         <-chan eventbus.Notification
	interval     time.Duration
	defaultToken string
	attempts     map[models.EventID]int
}

var pnlKinds = []models.EventKind{
	models.KindAddStake,
	models.KindAuctionFinished,
	models.KindLandBought,
	models.KindLandNuked,
	models.KindLandTransfer,
}

func NewPnlDeriver(store positionStore, wake <-chan eventbus.Notification, interval time.Duration, defaultToken string) *PnlDeriver {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PnlDeriver{
		store:        store,
		wake:         wake,
		interval:     interval,
		defaultToken: models.NormalizeAddress(defaultToken),
		attempts:     map[models.EventID]int{},
	}
}

func (d *PnlDeriver) Name() string { return "pnl_deriver" }

func (d *PnlDeriver) Run(ctx context.Context) {
	log.Printf("[pnl_deriver] started (interval=%s)", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.process(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("[pnl_deriver] shutting down")
			return
		case <-ticker.C:
			d.process(ctx)
		case _, ok := <-d.wake:
			if !ok {
				log.Println("[pnl_deriver] bus closed, shutting down")
				return
			}
			d.process(ctx)
		}
	}
}

func (d *PnlDeriver) process(ctx context.Context) {
	cursor, err := d.store.GetPnlCursor(ctx)
	if err != nil {
		log.Printf("[pnl_deriver] read cursor: %v", err)
		metrics.DeriverErrors.WithLabelValues(d.Name()).Inc()
		return
	}

	for {
		events, err := d.store.EventsAfter(ctx, cursor.LastProcessedTimestamp, cursor.LastProcessedEventID, pnlKinds, pnlBatchSize)
		if err != nil {
			log.Printf("[pnl_deriver] read events: %v", err)
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
				metrics.DeriverErrors.WithLabelValues(d.Name()).Inc()
				d.attempts[ev.ID]++
				if d.attempts[ev.ID] < pnlMaxAttempts {
					log.Printf("[pnl_deriver] %s %s (attempt %d): %v", ev.Kind, ev.ID, d.attempts[ev.ID], err)
					d.checkpoint(ctx, cursor)
					return
				}
				// Poison event: record it and move on.
				log.Printf("[pnl_deriver] giving up on %s %s: %v", ev.Kind, ev.ID, err)
				if logErr := d.store.LogIndexingError(ctx, d.Name(), ev.ID, "derive", err.Error(), ev.Payload); logErr != nil {
					log.Printf("[pnl_deriver] record derive error: %v", logErr)
					d.checkpoint(ctx, cursor)
					return
				}
				delete(d.attempts, ev.ID)
			} else {
				delete(d.attempts, ev.ID)
			}
			cursor = models.PnlCursor{LastProcessedTimestamp: ev.At, LastProcessedEventID: ev.ID}
		}
		d.checkpoint(ctx, cursor)

		if len(events) < pnlBatchSize {
			return
		}
	}
}

func (d *PnlDeriver) checkpoint(ctx context.Context, cursor models.PnlCursor) {
	if cursor.LastProcessedTimestamp.IsZero() {
		return
	}
	if err := d.store.UpdatePnlCursor(ctx, cursor); err != nil {
		log.Printf("[pnl_deriver] update cursor: %v", err)
		metrics.DeriverErrors.WithLabelValues(d.Name()).Inc()
	}
}

// actID qualifies the chain event id per derivation act so that each act
// of a multi-act event (a LandBought closes one position and opens
// another) is individually replay-safe.
func actID(id models.EventID, act string) models.EventID {
	return models.EventID(string(id) + "#" + act)
}

func (d *PnlDeriver) apply(ctx context.Context, ev models.Event) error {
	switch p := ev.Payload.(type) {
	case models.LandBoughtPayload:
		if err := d.closePosition(ctx, ev, p.Seller, p.Location, models.ExitTypeSold, p.SoldPrice); err != nil {
			return err
		}
		// A self-buy settles the existing position without starting a new one.
		if models.NormalizeAddress(p.Buyer) == models.NormalizeAddress(p.Seller) {
			return nil
		}
		return d.openPosition(ctx, ev, p.Buyer, p.Location, models.EntryTypeBuy, p.SoldPrice, p.TokenUsed)
	case models.AuctionFinishedPayload:
		token := p.TokenUsed
		if token == "" {
			// The contract event does not carry the token; the land
			// snapshot does, when the model ingester got there first.
			if land, err := d.store.GetLand(ctx, p.Location); err != nil {
				return err
			} else if land != nil && !models.IsZeroAddress(land.TokenUsed) {
				token = land.TokenUsed
			} else {
				token = d.defaultToken
			}
		}
		return d.openPosition(ctx, ev, p.Buyer, p.Location, models.EntryTypeAuction, p.Price, token)
	case models.LandNukedPayload:
		return d.closePosition(ctx, ev, p.OwnerNuked, p.Location, models.ExitTypeNuked, models.U256{})
	case models.AddStakePayload:
		return d.applyStake(ctx, ev, p)
	case models.LandTransferPayload:
		return d.applyTransfer(ctx, ev, p)
	default:
		return fmt.Errorf("unexpected kind %s", ev.Kind)
	}
}

func (d *PnlDeriver) openPosition(ctx context.Context, ev models.Event, buyer string, location models.Location, entryType string, price models.U256, token string) error {
	id := actID(ev.ID, "open")
	done, err := d.store.PositionLogExists(ctx, id)
	if err != nil || done {
		return err
	}
	if models.IsZeroAddress(buyer) {
		return nil
	}

	// The stake snapshot at open seeds the initial stake; a later
	// AddStake with the same total then folds to a zero delta.
	var initialStake models.U256
	if stake, err := d.store.GetLandStake(ctx, location); err != nil {
		return err
	} else if stake != nil {
		initialStake = stake.Amount
	}

	p := models.LandPosition{
		PositionID:         uuid.NewString(),
		Location:           location,
		Owner:              models.NormalizeAddress(buyer),
		TokenUsed:          models.NormalizeAddress(token),
		EntryPrice:         price,
		EntryToken:         models.NormalizeAddress(token),
		EntryType:          entryType,
		EntryTimestamp:     ev.At,
		EntryEventID:       ev.ID,
		InitialStake:       initialStake,
		TaxesEarnedByToken: map[string]models.U256{},
		TotalBuyFee:        models.ProtocolFee(price),
		Status:             models.PositionActive,
	}
	if err := d.store.CreatePosition(ctx, p, d.logEntry(p.PositionID, models.PositionLogCreated, ev, id)); err != nil {
		return fmt.Errorf("open position: %w", err)
	}
	metrics.PositionsOpened.Inc()
	return nil
}

func (d *PnlDeriver) closePosition(ctx context.Context, ev models.Event, owner string, location models.Location, exitType string, exitPrice models.U256) error {
	id := actID(ev.ID, "close")
	done, err := d.store.PositionLogExists(ctx, id)
	if err != nil || done {
		return err
	}
	if models.IsZeroAddress(owner) {
		return nil
	}

	p, err := d.store.GetActivePosition(ctx, owner, location)
	if err != nil {
		return err
	}
	if p == nil {
		// Position opened before the deriver's genesis; nothing to fold.
		return nil
	}

	// Remaining stake is refunded on a sale; a nuke burns it.
	var refunded models.U256
	if exitType == models.ExitTypeSold {
		refunded = p.InitialStake.Add(p.TotalStakeAdded).SubSat(p.TaxesPaidAmount)
	}

	if err := d.store.ClosePosition(ctx, p.PositionID, exitPrice, refunded, exitType, ev.At, ev.ID,
		d.logEntry(p.PositionID, models.PositionLogClosed, ev, id)); err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	metrics.PositionsClosed.WithLabelValues(exitType).Inc()
	return nil
}

func (d *PnlDeriver) applyStake(ctx context.Context, ev models.Event, p models.AddStakePayload) error {
	id := actID(ev.ID, "stake")
	done, err := d.store.PositionLogExists(ctx, id)
	if err != nil || done {
		return err
	}

	pos, err := d.store.GetActivePosition(ctx, p.Owner, p.Location)
	if err != nil {
		return err
	}
	if pos == nil {
		return nil
	}

	entry := d.logEntry(pos.PositionID, models.PositionLogStakeAdded, ev, id)

	// new_stake_amount is the resulting total on the land. The first
	// sighting is the initial stake; later ones accumulate the delta.
	recorded := pos.InitialStake.Add(pos.TotalStakeAdded)
	if recorded.IsZero() {
		return d.store.SetInitialStake(ctx, pos.PositionID, p.NewStakeAmount, entry)
	}
	return d.store.AddStakeToPosition(ctx, pos.PositionID, p.NewStakeAmount.SubSat(recorded), entry)
}

func (d *PnlDeriver) applyTransfer(ctx context.Context, ev models.Event, p models.LandTransferPayload) error {
	// Inflow: the receiving land's owner earned taxes.
	inID := actID(ev.ID, "tax_in")
	done, err := d.store.PositionLogExists(ctx, inID)
	if err != nil {
		return err
	}
	if !done {
		pos, err := d.activePositionAt(ctx, p.ToLocation)
		if err != nil {
			return err
		}
		if pos != nil {
			if err := d.store.AddTaxEarned(ctx, pos.PositionID, p.TokenAddress, p.Amount,
				d.logEntry(pos.PositionID, models.PositionLogTaxIn, ev, inID)); err != nil {
				return fmt.Errorf("tax inflow: %w", err)
			}
		}
	}

	// Outflow: the paying land's owner spent stake.
	outID := actID(ev.ID, "tax_out")
	done, err = d.store.PositionLogExists(ctx, outID)
	if err != nil || done {
		return err
	}
	pos, err := d.activePositionAt(ctx, p.FromLocation)
	if err != nil {
		return err
	}
	if pos == nil {
		return nil
	}
	if err := d.store.AddTaxPaid(ctx, pos.PositionID, p.Amount,
		d.logEntry(pos.PositionID, models.PositionLogTaxOut, ev, outID)); err != nil {
		return fmt.Errorf("tax outflow: %w", err)
	}
	return nil
}

// activePositionAt resolves a location to its current owner's active
// position via the land snapshot.
func (d *PnlDeriver) activePositionAt(ctx context.Context, location models.Location) (*models.LandPosition, error) {
	land, err := d.store.GetLand(ctx, location)
	if err != nil {
		return nil, err
	}
	if land == nil || models.IsZeroAddress(land.Owner) {
		return nil, nil
	}
	return d.store.GetActivePosition(ctx, land.Owner, location)
}

func (d *PnlDeriver) logEntry(positionID, eventType string, ev models.Event, id models.EventID) models.PositionEventLog {
	data, _ := json.Marshal(ev.Payload)
	return models.PositionEventLog{
		LogID:             uuid.NewString(),
		PositionID:        positionID,
		EventType:         eventType,
		EventData:         data,
		Timestamp:         ev.At,
		BlockchainEventID: id,
	}
}
