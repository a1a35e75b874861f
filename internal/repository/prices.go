package repository

import (
	"context"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// InsertPriceFeed appends one price sample.
func (r *Repository) InsertPriceFeed(ctx context.Context, symbol string, price float64, usdRatio *float64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO historical_price_feed (symbol, price, usd_ratio, timestamp)
		VALUES ($1, $2, $3, $4)`,
		symbol, price, usdRatio, at,
	)
	return err
}

// PriceFeedHistory returns samples for a symbol since the cutoff, oldest
// first.
func (r *Repository) PriceFeedHistory(ctx context.Context, symbol string, since time.Time) ([]models.HistoricalPriceFeed, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, symbol, price, usd_ratio, timestamp FROM historical_price_feed
		WHERE symbol = $1 AND timestamp >= $2 ORDER BY timestamp`, symbol, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feed []models.HistoricalPriceFeed
	for rows.Next() {
		var f models.HistoricalPriceFeed
		if err := rows.Scan(&f.ID, &f.Symbol, &f.Price, &f.USDRatio, &f.Timestamp); err != nil {
			return nil, err
		}
		feed = append(feed, f)
	}
	return feed, rows.Err()
}
