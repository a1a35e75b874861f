package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// MaxEventAt returns max(at) over the event log, or zero time when empty.
// The event ingester derives its poll cursor from this.
func (r *Repository) MaxEventAt(ctx context.Context) (time.Time, error) {
	var at *time.Time
	if err := r.db.QueryRow(ctx, `SELECT MAX(at) FROM event`).Scan(&at); err != nil {
		return time.Time{}, err
	}
	if at == nil {
		return time.Time{}, nil
	}
	return at.UTC(), nil
}

// InsertEvent persists one event atomically: a row in `event` plus a row
// in the per-kind table. A unique violation on event.id means the event
// was already ingested; it is dropped and (false, nil) returned.
func (r *Repository) InsertEvent(ctx context.Context, ev models.Event) (bool, error) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal %s payload: %w", ev.Kind, err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO event (id, at, kind, data) VALUES ($1, $2, $3, $4)`,
		string(ev.ID), ev.At, string(ev.Kind), data,
	); err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert event %s: %w", ev.ID, err)
	}

	if err := insertKindRow(ctx, tx, ev); err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert %s row %s: %w", ev.Kind, ev.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func insertKindRow(ctx context.Context, tx pgx.Tx, ev models.Event) error {
	id, at := string(ev.ID), ev.At
	switch p := ev.Payload.(type) {
	case models.AddStakePayload:
		_, err := tx.Exec(ctx, `
			INSERT INTO event_add_stake (event_id, at, owner_address, land_location, new_stake_amount)
			VALUES ($1, $2, $3, $4, $5)`,
			id, at, models.NormalizeAddress(p.Owner), int(p.Location), p.NewStakeAmount.Hex())
		return err
	case models.AuctionFinishedPayload:
		_, err := tx.Exec(ctx, `
			INSERT INTO event_auction_finished (event_id, at, land_location, buyer, final_price)
			VALUES ($1, $2, $3, $4, $5)`,
			id, at, int(p.Location), models.NormalizeAddress(p.Buyer), p.Price.Hex())
		return err
	case models.LandBoughtPayload:
		_, err := tx.Exec(ctx, `
			INSERT INTO event_land_bought (event_id, at, land_location, buyer, seller, sold_price, token_used)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, at, int(p.Location), models.NormalizeAddress(p.Buyer), models.NormalizeAddress(p.Seller),
			p.SoldPrice.Hex(), models.NormalizeAddress(p.TokenUsed))
		return err
	case models.LandNukedPayload:
		_, err := tx.Exec(ctx, `
			INSERT INTO event_land_nuked (event_id, at, land_location, owner_nuked)
			VALUES ($1, $2, $3, $4)`,
			id, at, int(p.Location), models.NormalizeAddress(p.OwnerNuked))
		return err
	case models.NewAuctionPayload:
		_, err := tx.Exec(ctx, `
			INSERT INTO event_new_auction (event_id, at, land_location, start_time, start_price, floor_price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, at, int(p.Location), time.Unix(p.StartTime, 0).UTC(), p.StartPrice.Hex(), p.FloorPrice.Hex())
		return err
	case models.LandTransferPayload:
		_, err := tx.Exec(ctx, `
			INSERT INTO event_land_transfer (event_id, at, from_location, to_location, token_address, amount)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, at, int(p.FromLocation), int(p.ToLocation), models.NormalizeAddress(p.TokenAddress), p.Amount.Hex())
		return err
	case models.AddressAuthorizedPayload:
		_, err := tx.Exec(ctx, `
			INSERT INTO event_address_authorized (event_id, at, address, authorized_at)
			VALUES ($1, $2, $3, $4)`,
			id, at, models.NormalizeAddress(p.Address), p.AuthorizedAt)
		return err
	case models.AddressRemovedPayload:
		_, err := tx.Exec(ctx, `
			INSERT INTO event_address_removed (event_id, at, address, removed_at)
			VALUES ($1, $2, $3, $4)`,
			id, at, models.NormalizeAddress(p.Address), p.RemovedAt)
		return err
	case models.VerifierUpdatedPayload:
		_, err := tx.Exec(ctx, `
			INSERT INTO event_verifier_updated (event_id, at, new_verifier, old_verifier)
			VALUES ($1, $2, $3, $4)`,
			id, at, models.NormalizeAddress(p.NewVerifier), models.NormalizeAddress(p.OldVerifier))
		return err
	default:
		return fmt.Errorf("no per-kind table for %s", ev.Kind)
	}
}

// EventsAfter reads the durable event log in (at, id) order, strictly
// after the (since, sinceID) cursor. Same-timestamp events are ordered by
// id lexicographically, matching the ingester's tie-break. kinds filters
// the result; nil means every kind.
func (r *Repository) EventsAfter(ctx context.Context, since time.Time, sinceID models.EventID, kinds []models.EventKind, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT id, at, kind, data FROM event
		WHERE (at > $1 OR (at = $1 AND id > $2))`
	args := []any{since, string(sinceID)}
	if len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		query += ` AND kind = ANY($3)`
		args = append(args, names)
	}
	query += fmt.Sprintf(` ORDER BY at, id LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			id, kind string
			at       time.Time
			data     []byte
		)
		if err := rows.Scan(&id, &at, &kind, &data); err != nil {
			return nil, err
		}
		ev, err := decodeEvent(models.EventID(id), at.UTC(), models.EventKind(kind), data)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func decodeEvent(id models.EventID, at time.Time, kind models.EventKind, data []byte) (models.Event, error) {
	ev := models.Event{ID: id, At: at, Kind: kind}
	var err error
	switch kind {
	case models.KindAddStake:
		var p models.AddStakePayload
		err = json.Unmarshal(data, &p)
		ev.Payload = p
	case models.KindAuctionFinished:
		var p models.AuctionFinishedPayload
		err = json.Unmarshal(data, &p)
		ev.Payload = p
	case models.KindLandBought:
		var p models.LandBoughtPayload
		err = json.Unmarshal(data, &p)
		ev.Payload = p
	case models.KindLandNuked:
		var p models.LandNukedPayload
		err = json.Unmarshal(data, &p)
		ev.Payload = p
	case models.KindNewAuction:
		var p models.NewAuctionPayload
		err = json.Unmarshal(data, &p)
		ev.Payload = p
	case models.KindLandTransfer:
		var p models.LandTransferPayload
		err = json.Unmarshal(data, &p)
		ev.Payload = p
	case models.KindAddressAuthorized:
		var p models.AddressAuthorizedPayload
		err = json.Unmarshal(data, &p)
		ev.Payload = p
	case models.KindAddressRemoved:
		var p models.AddressRemovedPayload
		err = json.Unmarshal(data, &p)
		ev.Payload = p
	case models.KindVerifierUpdated:
		var p models.VerifierUpdatedPayload
		err = json.Unmarshal(data, &p)
		ev.Payload = p
	default:
		return ev, fmt.Errorf("unknown event kind %q for %s", kind, id)
	}
	if err != nil {
		return ev, fmt.Errorf("decode %s payload for %s: %w", kind, id, err)
	}
	return ev, nil
}

// SumTransfersFrom totals LandTransfer amounts originating from any of
// the given locations inside [since, until]. Zero bounds are unbounded.
// Amounts are stored as hex text, so the sum happens here, not in SQL.
func (r *Repository) SumTransfersFrom(ctx context.Context, locations []models.Location, since, until time.Time) (models.U256, error) {
	locs := make([]int, len(locations))
	for i, l := range locations {
		locs[i] = int(l)
	}

	query := `SELECT amount FROM event_land_transfer WHERE from_location = ANY($1)`
	args := []any{locs}
	if !since.IsZero() {
		args = append(args, since)
		query += fmt.Sprintf(` AND at >= $%d`, len(args))
	}
	if !until.IsZero() {
		args = append(args, until)
		query += fmt.Sprintf(` AND at <= $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return models.U256{}, err
	}
	defer rows.Close()

	var total models.U256
	for rows.Next() {
		var amount models.U256
		if err := rows.Scan(&amount); err != nil {
			return models.U256{}, err
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}
