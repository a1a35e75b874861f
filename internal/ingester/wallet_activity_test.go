package ingester

import (
	"context"
	"testing"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

type fakeWalletStore struct {
	checkAt time.Time
	checkID models.EventID
	events  []models.Event
	touches map[string]int
	lastAt  map[string]time.Time
}

func newFakeWalletStore() *fakeWalletStore {
	return &fakeWalletStore{touches: map[string]int{}, lastAt: map[string]time.Time{}}
}

func (f *fakeWalletStore) GetDeriverCheckpoint(context.Context, string) (time.Time, models.EventID, error) {
	return f.checkAt, f.checkID, nil
}

func (f *fakeWalletStore) UpdateDeriverCheckpoint(_ context.Context, _ string, at time.Time, id models.EventID) error {
	f.checkAt, f.checkID = at, id
	return nil
}

func (f *fakeWalletStore) EventsAfter(_ context.Context, since time.Time, sinceID models.EventID, kinds []models.EventKind, limit int) ([]models.Event, error) {
	wanted := map[models.EventKind]bool{}
	for _, k := range kinds {
		wanted[k] = true
	}
	var out []models.Event
	for _, ev := range f.events {
		if !wanted[ev.Kind] {
			continue
		}
		if ev.At.Before(since) || (ev.At.Equal(since) && string(ev.ID) <= string(sinceID)) {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeWalletStore) TouchWalletActivity(_ context.Context, address string, at time.Time) error {
	addr := models.NormalizeAddress(address)
	f.touches[addr]++
	if at.After(f.lastAt[addr]) {
		f.lastAt[addr] = at
	}
	return nil
}

func TestWalletActivityTouchesAllParties(t *testing.T) {
	store := newFakeWalletStore()
	loc := models.LocationFromXY(3, 2)
	store.events = []models.Event{
		pnlEvent(0, models.LandBoughtPayload{Buyer: "0xaaa", Seller: "0xbbb", Location: loc, SoldPrice: models.U256FromUint64(1), TokenUsed: "0x11"}),
		pnlEvent(1, models.AddStakePayload{Owner: "0xaaa", Location: loc, NewStakeAmount: models.U256FromUint64(5)}),
		pnlEvent(2, models.LandNukedPayload{OwnerNuked: "0xaaa", Location: loc}),
	}

	d := NewWalletActivityDeriver(store, nil, time.Second)
	d.process(context.Background())

	if got := store.touches[models.NormalizeAddress("0xaaa")]; got != 3 {
		t.Fatalf("0xaaa touched %d times, want 3", got)
	}
	if got := store.touches[models.NormalizeAddress("0xbbb")]; got != 1 {
		t.Fatalf("0xbbb touched %d times, want 1", got)
	}
	if store.checkID != store.events[2].ID {
		t.Fatalf("checkpoint = %s", store.checkID)
	}
}

func TestWalletActivitySkipsZeroAddress(t *testing.T) {
	store := newFakeWalletStore()
	loc := models.LocationFromXY(1, 2)
	store.events = []models.Event{
		pnlEvent(0, models.LandBoughtPayload{Buyer: "0xaaa", Seller: models.ZeroAddress, Location: loc, SoldPrice: models.U256FromUint64(1), TokenUsed: "0x11"}),
	}

	d := NewWalletActivityDeriver(store, nil, time.Second)
	d.process(context.Background())

	if len(store.touches) != 1 {
		t.Fatalf("touches = %v, zero address must be skipped", store.touches)
	}
}

func TestWalletActivityCheckpointSkipsProcessed(t *testing.T) {
	store := newFakeWalletStore()
	loc := models.LocationFromXY(1, 3)
	store.events = []models.Event{
		pnlEvent(0, models.AddStakePayload{Owner: "0xaaa", Location: loc, NewStakeAmount: models.U256FromUint64(5)}),
	}

	d := NewWalletActivityDeriver(store, nil, time.Second)
	d.process(context.Background())
	d.process(context.Background())

	if got := store.touches[models.NormalizeAddress("0xaaa")]; got != 1 {
		t.Fatalf("0xaaa touched %d times after two runs, want 1", got)
	}
}
