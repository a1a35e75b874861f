package prices

import (
	"context"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/config"
)

// feedStore is the slice of the repository the recorder needs.
type feedStore interface {
	InsertPriceFeed(ctx context.Context, symbol string, price float64, usdRatio *float64, at time.Time) error
}

// Recorder samples the oracle and appends one historical_price_feed row
// per token that currently has a price.
type Recorder struct {
	oracle *Oracle
	store  feedStore
	tokens []config.Token
}

func NewRecorder(oracle *Oracle, store feedStore, tokens []config.Token) *Recorder {
	return &Recorder{oracle: oracle, store: store, tokens: tokens}
}

func (r *Recorder) Record(ctx context.Context) error {
	now := time.Now().UTC()
	var firstErr error
	for _, t := range r.tokens {
		p, ok := r.oracle.Ratio(t.Address)
		if !ok || p.Ratio == nil {
			continue
		}
		usd := r.oracle.USDRatio(t.Address)
		if err := r.store.InsertPriceFeed(ctx, t.Symbol, *p.Ratio, usd, now); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
