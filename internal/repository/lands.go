package repository

import (
	"context"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// MaxModelAt returns the model ingester's cursor:
// max(max(land.at), max(land_stake.at)). Zero time when both are empty.
func (r *Repository) MaxModelAt(ctx context.Context) (time.Time, error) {
	var at *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT GREATEST(
			(SELECT MAX(at) FROM land),
			(SELECT MAX(at) FROM land_stake)
		)`).Scan(&at)
	if err != nil {
		return time.Time{}, err
	}
	if at == nil {
		return time.Time{}, nil
	}
	return at.UTC(), nil
}

// UpsertLand keeps at most one row per location, newest `at` winning.
func (r *Repository) UpsertLand(ctx context.Context, land models.Land) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO land (location, id, at, owner_address, token_used, sell_price, level, block_date_bought)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (location) DO UPDATE SET
			id = EXCLUDED.id,
			at = EXCLUDED.at,
			owner_address = EXCLUDED.owner_address,
			token_used = EXCLUDED.token_used,
			sell_price = EXCLUDED.sell_price,
			level = EXCLUDED.level,
			block_date_bought = EXCLUDED.block_date_bought
		WHERE land.at <= EXCLUDED.at`,
		int(land.Location), string(land.ID), land.At,
		models.NormalizeAddress(land.Owner), models.NormalizeAddress(land.TokenUsed),
		land.SellPrice.Hex(), land.Level, land.BlockDateBought,
	)
	return err
}

func (r *Repository) UpsertLandStake(ctx context.Context, stake models.LandStake) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO land_stake (location, id, at, amount, earliest_claim_neighbor_time, earliest_claim_neighbor_location, num_active_neighbors)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (location) DO UPDATE SET
			id = EXCLUDED.id,
			at = EXCLUDED.at,
			amount = EXCLUDED.amount,
			earliest_claim_neighbor_time = EXCLUDED.earliest_claim_neighbor_time,
			earliest_claim_neighbor_location = EXCLUDED.earliest_claim_neighbor_location,
			num_active_neighbors = EXCLUDED.num_active_neighbors
		WHERE land_stake.at <= EXCLUDED.at`,
		int(stake.Location), string(stake.ID), stake.At, stake.Amount.Hex(),
		stake.EarliestClaimNeighborTime, int(stake.EarliestClaimNeighborLocation), stake.NumActiveNeighbors,
	)
	return err
}

func (r *Repository) UpsertAuction(ctx context.Context, a models.Auction) error {
	var soldAt *string
	if a.SoldAtPrice != nil {
		s := a.SoldAtPrice.Hex()
		soldAt = &s
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO auction (location, id, at, start_time, start_price, floor_price, decay_rate, is_finished, sold_at_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (location) DO UPDATE SET
			id = EXCLUDED.id,
			at = EXCLUDED.at,
			start_time = EXCLUDED.start_time,
			start_price = EXCLUDED.start_price,
			floor_price = EXCLUDED.floor_price,
			decay_rate = EXCLUDED.decay_rate,
			is_finished = EXCLUDED.is_finished,
			sold_at_price = EXCLUDED.sold_at_price
		WHERE auction.at <= EXCLUDED.at`,
		int(a.Location), string(a.ID), a.At, a.StartTime,
		a.StartPrice.Hex(), a.FloorPrice.Hex(), a.DecayRate.Hex(), a.IsFinished, soldAt,
	)
	return err
}

// GetLand returns the latest snapshot for location, or nil when unseen.
func (r *Repository) GetLand(ctx context.Context, location models.Location) (*models.Land, error) {
	var l models.Land
	var loc int
	var id string
	var bought *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT location, id, at, owner_address, token_used, sell_price, level, block_date_bought
		FROM land WHERE location = $1`, int(location),
	).Scan(&loc, &id, &l.At, &l.Owner, &l.TokenUsed, &l.SellPrice, &l.Level, &bought)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.Location = models.Location(loc)
	l.ID = models.EventID(id)
	if bought != nil {
		l.BlockDateBought = bought.UTC()
	}
	return &l, nil
}

func (r *Repository) GetLandStake(ctx context.Context, location models.Location) (*models.LandStake, error) {
	var s models.LandStake
	var loc, neighborLoc int
	var id string
	var claimTime *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT location, id, at, amount, earliest_claim_neighbor_time, earliest_claim_neighbor_location, num_active_neighbors
		FROM land_stake WHERE location = $1`, int(location),
	).Scan(&loc, &id, &s.At, &s.Amount, &claimTime, &neighborLoc, &s.NumActiveNeighbors)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Location = models.Location(loc)
	s.ID = models.EventID(id)
	s.EarliestClaimNeighborLocation = models.Location(neighborLoc)
	if claimTime != nil {
		s.EarliestClaimNeighborTime = claimTime.UTC()
	}
	return &s, nil
}

// ListLands returns every land snapshot ordered by location.
func (r *Repository) ListLands(ctx context.Context) ([]models.Land, error) {
	rows, err := r.db.Query(ctx, `
		SELECT location, id, at, owner_address, token_used, sell_price, level, block_date_bought
		FROM land ORDER BY location`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lands []models.Land
	for rows.Next() {
		var l models.Land
		var loc int
		var id string
		var bought *time.Time
		if err := rows.Scan(&loc, &id, &l.At, &l.Owner, &l.TokenUsed, &l.SellPrice, &l.Level, &bought); err != nil {
			return nil, err
		}
		l.Location = models.Location(loc)
		l.ID = models.EventID(id)
		if bought != nil {
			l.BlockDateBought = bought.UTC()
		}
		lands = append(lands, l)
	}
	return lands, rows.Err()
}
