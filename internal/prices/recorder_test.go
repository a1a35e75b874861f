package prices

import (
	"context"
	"testing"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/config"
)

type feedSample struct {
	symbol   string
	price    float64
	usdRatio *float64
}

type fakeFeedStore struct {
	samples []feedSample
}

func (f *fakeFeedStore) InsertPriceFeed(_ context.Context, symbol string, price float64, usdRatio *float64, _ time.Time) error {
	f.samples = append(f.samples, feedSample{symbol, price, usdRatio})
	return nil
}

func TestRecorderSkipsUnpricedTokens(t *testing.T) {
	tokens := []config.Token{
		{Address: "0x01", Symbol: "USDC"},
		{Address: "0x02", Symbol: "LORDS"},
		{Address: "0x03", Symbol: "PAPER"}, // no price
	}
	avnu := NewStore()
	avnu.Swap(pricedSnapshot(map[string]float64{"0x01": 0.5, "0x02": 4}))
	oracle := NewOracle(avnu, NewStore(), NewDecimalsCache(tokens), tokens)

	store := &fakeFeedStore{}
	rec := NewRecorder(oracle, store, tokens)
	if err := rec.Record(context.Background()); err != nil {
		t.Fatalf("record: %v", err)
	}

	if len(store.samples) != 2 {
		t.Fatalf("recorded %d samples, want 2", len(store.samples))
	}
	for _, s := range store.samples {
		if s.usdRatio == nil {
			t.Fatalf("%s recorded without usd ratio", s.symbol)
		}
	}
	if store.samples[1].symbol != "LORDS" || store.samples[1].price != 4 {
		t.Fatalf("sample[1] = %+v", store.samples[1])
	}
	if got := *store.samples[1].usdRatio; got != 0.125 {
		t.Fatalf("LORDS usd ratio = %v, want 0.125", got)
	}
}
