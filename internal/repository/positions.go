package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// GetPnlCursor reads the position deriver's singleton cursor.
func (r *Repository) GetPnlCursor(ctx context.Context) (models.PnlCursor, error) {
	var c models.PnlCursor
	var id *string
	err := r.db.QueryRow(ctx, `
		SELECT last_processed_timestamp, COALESCE(last_processed_event_id, '')
		FROM pnl_processor_state WHERE id = 1`,
	).Scan(&c.LastProcessedTimestamp, &id)
	if isNoRows(err) {
		return models.PnlCursor{}, nil
	}
	if err != nil {
		return models.PnlCursor{}, err
	}
	c.LastProcessedTimestamp = c.LastProcessedTimestamp.UTC()
	if id != nil {
		c.LastProcessedEventID = models.EventID(*id)
	}
	return c, nil
}

// UpdatePnlCursor advances the cursor. The WHERE clause keeps it
// monotonic even if a stale worker instance races a newer one.
func (r *Repository) UpdatePnlCursor(ctx context.Context, c models.PnlCursor) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pnl_processor_state (id, last_processed_timestamp, last_processed_event_id, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_processed_timestamp = EXCLUDED.last_processed_timestamp,
			last_processed_event_id = EXCLUDED.last_processed_event_id,
			updated_at = EXCLUDED.updated_at
		WHERE pnl_processor_state.last_processed_timestamp <= EXCLUDED.last_processed_timestamp`,
		c.LastProcessedTimestamp, string(c.LastProcessedEventID),
	)
	return err
}

// PositionLogExists reports whether a derivation act for the chain event
// has already been recorded. This is the position deriver's idempotency
// check.
func (r *Repository) PositionLogExists(ctx context.Context, eventID models.EventID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM position_event_log WHERE blockchain_event_id = $1)`,
		string(eventID),
	).Scan(&exists)
	return exists, err
}

const positionColumns = `
	position_id, land_location, owner_address, token_used,
	entry_price, entry_token, entry_type, entry_timestamp, entry_event_id,
	initial_stake, total_stake_added, taxes_earned_by_token, taxes_paid_amount,
	total_buy_fee, total_claim_fees,
	exit_price, exit_stake_refunded, exit_timestamp, exit_type, exit_event_id,
	status, value_in_usdc`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (models.LandPosition, error) {
	var p models.LandPosition
	var loc int
	var entryEventID string
	var taxes []byte
	var exitPrice, exitRefund, exitType, exitEventID *string
	var exitTS *time.Time

	err := row.Scan(
		&p.PositionID, &loc, &p.Owner, &p.TokenUsed,
		&p.EntryPrice, &p.EntryToken, &p.EntryType, &p.EntryTimestamp, &entryEventID,
		&p.InitialStake, &p.TotalStakeAdded, &taxes, &p.TaxesPaidAmount,
		&p.TotalBuyFee, &p.TotalClaimFees,
		&exitPrice, &exitRefund, &exitTS, &exitType, &exitEventID,
		&p.Status, &p.ValueInUSDC,
	)
	if err != nil {
		return p, err
	}

	p.Location = models.Location(loc)
	p.EntryEventID = models.EventID(entryEventID)
	p.EntryTimestamp = p.EntryTimestamp.UTC()
	if len(taxes) > 0 {
		if err := json.Unmarshal(taxes, &p.TaxesEarnedByToken); err != nil {
			return p, fmt.Errorf("decode taxes_earned_by_token: %w", err)
		}
	}
	if p.TaxesEarnedByToken == nil {
		p.TaxesEarnedByToken = map[string]models.U256{}
	}
	if exitPrice != nil {
		v, err := models.ParseU256(*exitPrice)
		if err != nil {
			return p, err
		}
		p.ExitPrice = &v
	}
	if exitRefund != nil {
		v, err := models.ParseU256(*exitRefund)
		if err != nil {
			return p, err
		}
		p.ExitStakeRefunded = &v
	}
	if exitTS != nil {
		t := exitTS.UTC()
		p.ExitTimestamp = &t
	}
	p.ExitType = exitType
	if exitEventID != nil {
		id := models.EventID(*exitEventID)
		p.ExitEventID = &id
	}
	return p, nil
}

// GetActivePosition returns the single ACTIVE position for (owner,
// location), or nil.
func (r *Repository) GetActivePosition(ctx context.Context, owner string, location models.Location) (*models.LandPosition, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+positionColumns+` FROM land_position
		WHERE owner_address = $1 AND land_location = $2 AND status = 'ACTIVE'`,
		models.NormalizeAddress(owner), int(location),
	)
	p, err := scanPosition(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPositions returns positions for an owner, newest entries first.
func (r *Repository) ListPositions(ctx context.Context, owner string, limit int) ([]models.LandPosition, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+positionColumns+` FROM land_position
		WHERE owner_address = $1 ORDER BY entry_timestamp DESC LIMIT $2`,
		models.NormalizeAddress(owner), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []models.LandPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func insertPositionLog(ctx context.Context, tx pgx.Tx, entry models.PositionEventLog) error {
	data := entry.EventData
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO position_event_log (log_id, position_id, event_type, event_data, timestamp, blockchain_event_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.LogID, entry.PositionID, entry.EventType, []byte(data), entry.Timestamp, string(entry.BlockchainEventID),
	)
	return err
}

// CreatePosition inserts the position and its CREATED log atomically.
func (r *Repository) CreatePosition(ctx context.Context, p models.LandPosition, logEntry models.PositionEventLog) error {
	taxes, err := json.Marshal(p.TaxesEarnedByToken)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO land_position (
			position_id, land_location, owner_address, token_used,
			entry_price, entry_token, entry_type, entry_timestamp, entry_event_id,
			initial_stake, total_stake_added, taxes_earned_by_token, taxes_paid_amount,
			total_buy_fee, total_claim_fees, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 'ACTIVE')`,
		p.PositionID, int(p.Location), models.NormalizeAddress(p.Owner), models.NormalizeAddress(p.TokenUsed),
		p.EntryPrice.Hex(), models.NormalizeAddress(p.EntryToken), p.EntryType, p.EntryTimestamp, string(p.EntryEventID),
		p.InitialStake.Hex(), p.TotalStakeAdded.Hex(), taxes, p.TaxesPaidAmount.Hex(),
		p.TotalBuyFee.Hex(), p.TotalClaimFees.Hex(),
	); err != nil {
		return fmt.Errorf("insert position: %w", err)
	}

	if err := insertPositionLog(ctx, tx, logEntry); err != nil {
		return fmt.Errorf("insert CREATED log: %w", err)
	}
	return tx.Commit(ctx)
}

// ClosePosition flips the position to CLOSED with full exit fields and
// appends the CLOSED log atomically.
func (r *Repository) ClosePosition(ctx context.Context, positionID string, exitPrice, stakeRefunded models.U256, exitType string, at time.Time, eventID models.EventID, logEntry models.PositionEventLog) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE land_position SET
			exit_price = $2, exit_stake_refunded = $3, exit_timestamp = $4,
			exit_type = $5, exit_event_id = $6, status = 'CLOSED', updated_at = NOW()
		WHERE position_id = $1 AND status = 'ACTIVE'`,
		positionID, exitPrice.Hex(), stakeRefunded.Hex(), at, exitType, string(eventID),
	)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s is not active", positionID)
	}

	if err := insertPositionLog(ctx, tx, logEntry); err != nil {
		return fmt.Errorf("insert CLOSED log: %w", err)
	}
	return tx.Commit(ctx)
}

// AddStakeToPosition accumulates total_stake_added and appends the
// STAKE_ADDED log atomically. The amount column is hex text, so the
// addition happens here under a row lock.
func (r *Repository) AddStakeToPosition(ctx context.Context, positionID string, amount models.U256, logEntry models.PositionEventLog) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current models.U256
	if err := tx.QueryRow(ctx,
		`SELECT total_stake_added FROM land_position WHERE position_id = $1 AND status = 'ACTIVE' FOR UPDATE`,
		positionID,
	).Scan(&current); err != nil {
		return fmt.Errorf("lock position %s: %w", positionID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE land_position SET total_stake_added = $2, updated_at = NOW() WHERE position_id = $1`,
		positionID, current.Add(amount).Hex(),
	); err != nil {
		return err
	}

	if err := insertPositionLog(ctx, tx, logEntry); err != nil {
		return fmt.Errorf("insert STAKE_ADDED log: %w", err)
	}
	return tx.Commit(ctx)
}

// SetInitialStake fills initial_stake on a position whose stake has not
// been seen yet, with the STAKE_ADDED log in the same transaction.
func (r *Repository) SetInitialStake(ctx context.Context, positionID string, amount models.U256, logEntry models.PositionEventLog) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE land_position SET initial_stake = $2, updated_at = NOW() WHERE position_id = $1 AND status = 'ACTIVE'`,
		positionID, amount.Hex(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s is not active", positionID)
	}

	if err := insertPositionLog(ctx, tx, logEntry); err != nil {
		return fmt.Errorf("insert STAKE_ADDED log: %w", err)
	}
	return tx.Commit(ctx)
}

// AddTaxEarned accumulates one token bucket of taxes_earned_by_token and
// appends the TAX_IN log atomically.
func (r *Repository) AddTaxEarned(ctx context.Context, positionID, token string, amount models.U256, logEntry models.PositionEventLog) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var raw []byte
	if err := tx.QueryRow(ctx,
		`SELECT taxes_earned_by_token FROM land_position WHERE position_id = $1 AND status = 'ACTIVE' FOR UPDATE`,
		positionID,
	).Scan(&raw); err != nil {
		return fmt.Errorf("lock position %s: %w", positionID, err)
	}

	taxes := map[string]models.U256{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &taxes); err != nil {
			return fmt.Errorf("decode taxes_earned_by_token: %w", err)
		}
	}
	key := models.NormalizeAddress(token)
	taxes[key] = taxes[key].Add(amount)

	updated, err := json.Marshal(taxes)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE land_position SET taxes_earned_by_token = $2, updated_at = NOW() WHERE position_id = $1`,
		positionID, updated,
	); err != nil {
		return err
	}

	if err := insertPositionLog(ctx, tx, logEntry); err != nil {
		return fmt.Errorf("insert TAX_IN log: %w", err)
	}
	return tx.Commit(ctx)
}

// AddTaxPaid accumulates taxes_paid_amount and appends the TAX_OUT log
// atomically.
func (r *Repository) AddTaxPaid(ctx context.Context, positionID string, amount models.U256, logEntry models.PositionEventLog) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current models.U256
	if err := tx.QueryRow(ctx,
		`SELECT taxes_paid_amount FROM land_position WHERE position_id = $1 AND status = 'ACTIVE' FOR UPDATE`,
		positionID,
	).Scan(&current); err != nil {
		return fmt.Errorf("lock position %s: %w", positionID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE land_position SET taxes_paid_amount = $2, updated_at = NOW() WHERE position_id = $1`,
		positionID, current.Add(amount).Hex(),
	); err != nil {
		return err
	}

	if err := insertPositionLog(ctx, tx, logEntry); err != nil {
		return fmt.Errorf("insert TAX_OUT log: %w", err)
	}
	return tx.Commit(ctx)
}
