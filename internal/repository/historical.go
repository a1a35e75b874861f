package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

const historicalColumns = `
	id, at, owner_address, land_location, time_bought,
	close_date, close_reason,
	buy_cost_token, buy_cost_usd, buy_token_used,
	sale_revenue_token, sale_revenue_usd, sale_token_used,
	token_inflows, token_outflows`

func scanHistorical(row rowScanner) (models.LandHistorical, error) {
	var h models.LandHistorical
	var loc int
	var closeDate *time.Time
	var buyCost, saleRevenue *string
	var inflows, outflows []byte

	err := row.Scan(
		&h.ID, &h.At, &h.Owner, &loc, &h.TimeBought,
		&closeDate, &h.CloseReason,
		&buyCost, &h.BuyCostUSD, &h.BuyTokenUsed,
		&saleRevenue, &h.SaleRevenueUSD, &h.SaleTokenUsed,
		&inflows, &outflows,
	)
	if err != nil {
		return h, err
	}

	h.LandLocation = models.Location(loc)
	h.At = h.At.UTC()
	h.TimeBought = h.TimeBought.UTC()
	if closeDate != nil {
		t := closeDate.UTC()
		h.CloseDate = &t
	}
	if buyCost != nil {
		v, err := models.ParseU256(*buyCost)
		if err != nil {
			return h, err
		}
		h.BuyCostToken = &v
	}
	if saleRevenue != nil {
		v, err := models.ParseU256(*saleRevenue)
		if err != nil {
			return h, err
		}
		h.SaleRevenueToken = &v
	}
	if err := decodeFlowMap(inflows, &h.TokenInflows); err != nil {
		return h, fmt.Errorf("token_inflows: %w", err)
	}
	if err := decodeFlowMap(outflows, &h.TokenOutflows); err != nil {
		return h, fmt.Errorf("token_outflows: %w", err)
	}
	return h, nil
}

func decodeFlowMap(raw []byte, dst *map[string]models.U256) error {
	*dst = map[string]models.U256{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// UpsertHistoricalOpen inserts a fresh open row. Replays of the same open
// collapse to the same id and leave the existing row untouched.
func (r *Repository) UpsertHistoricalOpen(ctx context.Context, h models.LandHistorical) error {
	var buyCost, buyToken *string
	if h.BuyCostToken != nil {
		s := h.BuyCostToken.Hex()
		buyCost = &s
	}
	buyToken = h.BuyTokenUsed

	_, err := r.db.Exec(ctx, `
		INSERT INTO land_historical (id, at, owner_address, land_location, time_bought, buy_cost_token, buy_cost_usd, buy_token_used, token_inflows, token_outflows)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}', '{}')
		ON CONFLICT (id) DO NOTHING`,
		h.ID, h.At, models.NormalizeAddress(h.Owner), int(h.LandLocation), h.TimeBought,
		buyCost, h.BuyCostUSD, buyToken,
	)
	return err
}

// OpenHistoricalRows returns the rows at location with no close_date.
func (r *Repository) OpenHistoricalRows(ctx context.Context, location models.Location) ([]models.LandHistorical, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+historicalColumns+` FROM land_historical
		WHERE land_location = $1 AND close_date IS NULL`, int(location))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.LandHistorical
	for rows.Next() {
		h, err := scanHistorical(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

// CloseHistoricalRow fills the close fields; sale columns stay NULL for
// nukes. Replay-safe: closing an already-closed row is a no-op.
func (r *Repository) CloseHistoricalRow(ctx context.Context, id string, closeDate time.Time, reason string, saleToken *models.U256, saleUSD *float64, saleTokenUsed *string) error {
	var sale *string
	if saleToken != nil {
		s := saleToken.Hex()
		sale = &s
	}
	_, err := r.db.Exec(ctx, `
		UPDATE land_historical SET
			close_date = $2, close_reason = $3,
			sale_revenue_token = $4, sale_revenue_usd = $5, sale_token_used = $6
		WHERE id = $1 AND close_date IS NULL`,
		id, closeDate, reason, sale, saleUSD, saleTokenUsed,
	)
	return err
}

// AccumulateHistoricalFlow adds amount to one token bucket of a row's
// inflow or outflow map. The JSONB update is read-modify-write under a
// row lock because the values are hex-text U256s.
func (r *Repository) AccumulateHistoricalFlow(ctx context.Context, id string, inflow bool, token string, amount models.U256) error {
	column := "token_outflows"
	if inflow {
		column = "token_inflows"
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var raw []byte
	if err := tx.QueryRow(ctx,
		`SELECT `+column+` FROM land_historical WHERE id = $1 FOR UPDATE`, id,
	).Scan(&raw); err != nil {
		return fmt.Errorf("lock historical row %s: %w", id, err)
	}

	var flows map[string]models.U256
	if err := decodeFlowMap(raw, &flows); err != nil {
		return err
	}
	key := models.NormalizeAddress(token)
	flows[key] = flows[key].Add(amount)

	updated, err := json.Marshal(flows)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE land_historical SET `+column+` = $2 WHERE id = $1`, id, updated,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// HistoricalByOwner lists an owner's rows, newest buys first.
func (r *Repository) HistoricalByOwner(ctx context.Context, owner string) ([]models.LandHistorical, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+historicalColumns+` FROM land_historical
		WHERE owner_address = $1 ORDER BY time_bought DESC`,
		models.NormalizeAddress(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.LandHistorical
	for rows.Next() {
		h, err := scanHistorical(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

// HistoricalWindow lists rows bought inside [since, until]. Zero bounds
// are unbounded. Used by the leaderboard and the drop engine.
func (r *Repository) HistoricalWindow(ctx context.Context, owner string, since, until time.Time) ([]models.LandHistorical, error) {
	query := `SELECT ` + historicalColumns + ` FROM land_historical WHERE 1=1`
	var args []any
	if owner != "" {
		args = append(args, models.NormalizeAddress(owner))
		query += fmt.Sprintf(` AND owner_address = $%d`, len(args))
	}
	if !since.IsZero() {
		args = append(args, since)
		query += fmt.Sprintf(` AND time_bought >= $%d`, len(args))
	}
	if !until.IsZero() {
		args = append(args, until)
		query += fmt.Sprintf(` AND time_bought <= $%d`, len(args))
	}
	query += ` ORDER BY time_bought`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.LandHistorical
	for rows.Next() {
		h, err := scanHistorical(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

// HistoricalSnapshot returns the rows that were open at instant `at`.
func (r *Repository) HistoricalSnapshot(ctx context.Context, at time.Time) ([]models.LandHistorical, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+historicalColumns+` FROM land_historical
		WHERE time_bought <= $1 AND (close_date IS NULL OR close_date > $1)
		ORDER BY land_location`, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.LandHistorical
	for rows.Next() {
		h, err := scanHistorical(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}
