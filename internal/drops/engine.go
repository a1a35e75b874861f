// Package drops computes per-drop liquidity analytics: how much stake a
// protocol re-injection wallet seeded into a land, how far it has been
// distributed to neighbors through taxes, and what the protocol earned in
// fees on the surrounding 3x3 area.
package drops

import (
	"context"
	"fmt"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// dropStore is the repository surface the engine reads. It never writes.
type dropStore interface {
	HistoricalWindow(ctx context.Context, owner string, since, until time.Time) ([]models.LandHistorical, error)
	GetLandStake(ctx context.Context, location models.Location) (*models.LandStake, error)
	SumTransfersFrom(ctx context.Context, locations []models.Location, since, until time.Time) (models.U256, error)
}

// Report is the computed analytics for one drop.
type Report struct {
	Owner      string          `json:"owner"`
	Location   models.Location `json:"land_location"`
	TimeBought time.Time       `json:"time_bought"`
	CloseDate  *time.Time      `json:"close_date,omitempty"`

	InitialStake     models.U256 `json:"drop_initial_stake"`
	RemainingStake   models.U256 `json:"drop_remaining_stake"`
	DistributedTotal models.U256 `json:"drop_distributed_total"`
	NeighborTaxes    models.U256 `json:"neighbor_taxes_received"`
	AreaProtocolFees models.U256 `json:"area_protocol_fees_total"`
	ROI              float64     `json:"drop_roi"`
}

type Engine struct {
	store    dropStore
	emitters []string
	feeRate  uint64
}

// NewEngine builds the query engine. emitters are the protocol
// re-injection wallets; feeRate is in parts of 10_000_000 and defaults to
// the contract's protocol fee.
func NewEngine(store dropStore, emitters []string, feeRate uint64) *Engine {
	if feeRate == 0 {
		feeRate = models.ProtocolFeeRate
	}
	normalized := make([]string, 0, len(emitters))
	for _, e := range emitters {
		normalized = append(normalized, models.NormalizeAddress(e))
	}
	return &Engine{store: store, emitters: normalized, feeRate: feeRate}
}

// EmittedDrops reports on every drop owned by a configured emitter wallet
// inside [since, until]. Zero bounds are unbounded.
func (e *Engine) EmittedDrops(ctx context.Context, since, until time.Time) ([]Report, error) {
	var reports []Report
	for _, owner := range e.emitters {
		r, err := e.DropsFor(ctx, owner, since, until)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r...)
	}
	return reports, nil
}

// DropsFor reports on the drops of a single re-injection wallet.
func (e *Engine) DropsFor(ctx context.Context, owner string, since, until time.Time) ([]Report, error) {
	rows, err := e.store.HistoricalWindow(ctx, owner, since, until)
	if err != nil {
		return nil, fmt.Errorf("load drops for %s: %w", owner, err)
	}

	reports := make([]Report, 0, len(rows))
	for _, row := range rows {
		r, err := e.report(ctx, row, since, until)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (e *Engine) report(ctx context.Context, row models.LandHistorical, since, until time.Time) (Report, error) {
	r := Report{
		Owner:         row.Owner,
		Location:      row.LandLocation,
		TimeBought:    row.TimeBought,
		CloseDate:     row.CloseDate,
		NeighborTaxes: models.SumU256(row.TokenInflows),
	}
	if row.BuyCostToken != nil {
		r.InitialStake = *row.BuyCostToken
	}

	// A closed drop has no stake left on the land; an open one holds
	// whatever the latest snapshot says.
	if row.CloseDate == nil {
		stake, err := e.store.GetLandStake(ctx, row.LandLocation)
		if err != nil {
			return r, fmt.Errorf("stake at %s: %w", row.LandLocation.Display(), err)
		}
		if stake != nil {
			r.RemainingStake = stake.Amount
		}
	}
	r.DistributedTotal = r.InitialStake.SubSat(r.RemainingStake)

	// Fees accrue on transfers leaving the drop's 3x3 area during its
	// tenure, clipped to the query window.
	from, to := tenureWindow(row, since, until)
	area := append(row.LandLocation.AreaNeighbors(), row.LandLocation)
	total, err := e.store.SumTransfersFrom(ctx, area, from, to)
	if err != nil {
		return r, fmt.Errorf("area transfers at %s: %w", row.LandLocation.Display(), err)
	}
	r.AreaProtocolFees = total.MulDiv(e.feeRate, models.FeeRateDenominator)

	if !r.DistributedTotal.IsZero() {
		r.ROI = r.AreaProtocolFees.Float64() / r.DistributedTotal.Float64()
	}
	return r, nil
}

func tenureWindow(row models.LandHistorical, since, until time.Time) (time.Time, time.Time) {
	from := row.TimeBought
	if since.After(from) {
		from = since
	}
	to := until
	if row.CloseDate != nil && (to.IsZero() || row.CloseDate.Before(to)) {
		to = *row.CloseDate
	}
	return from, to
}
