package repository

import (
	"context"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// TouchWalletActivity upserts one sighting of an address. Counts and
// last-seen are monotonically non-decreasing; first-seen only ever moves
// backwards (replays of older events).
func (r *Repository) TouchWalletActivity(ctx context.Context, address string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO wallet_activity (address, first_activity_at, last_activity_at, activity_count, created_at, updated_at)
		VALUES ($1, $2, $2, 1, NOW(), NOW())
		ON CONFLICT (address) DO UPDATE SET
			first_activity_at = LEAST(wallet_activity.first_activity_at, EXCLUDED.first_activity_at),
			last_activity_at = GREATEST(wallet_activity.last_activity_at, EXCLUDED.last_activity_at),
			activity_count = wallet_activity.activity_count + 1,
			updated_at = NOW()`,
		models.NormalizeAddress(address), at,
	)
	return err
}

// ActiveWallets lists addresses active since the cutoff, most recent
// first.
func (r *Repository) ActiveWallets(ctx context.Context, since time.Time) ([]models.WalletActivity, error) {
	rows, err := r.db.Query(ctx, `
		SELECT address, first_activity_at, last_activity_at, activity_count, created_at, updated_at
		FROM wallet_activity
		WHERE last_activity_at >= $1
		ORDER BY last_activity_at DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []models.WalletActivity
	for rows.Next() {
		var w models.WalletActivity
		if err := rows.Scan(&w.Address, &w.FirstActivityAt, &w.LastActivityAt, &w.ActivityCount, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}
