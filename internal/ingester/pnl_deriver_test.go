package ingester

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// fakePositionStore is an in-memory positionStore.
type fakePositionStore struct {
	cursor    models.PnlCursor
	events    []models.Event
	logs      map[models.EventID]models.PositionEventLog
	positions map[string]*models.LandPosition
	lands     map[models.Location]*models.Land
	stakes    map[models.Location]*models.LandStake
	errLog    []string
	failKinds map[models.EventKind]error
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{
		logs:      map[models.EventID]models.PositionEventLog{},
		positions: map[string]*models.LandPosition{},
		lands:     map[models.Location]*models.Land{},
		stakes:    map[models.Location]*models.LandStake{},
		failKinds: map[models.EventKind]error{},
	}
}

func (f *fakePositionStore) GetPnlCursor(context.Context) (models.PnlCursor, error) {
	return f.cursor, nil
}

func (f *fakePositionStore) UpdatePnlCursor(_ context.Context, c models.PnlCursor) error {
	if c.LastProcessedTimestamp.Before(f.cursor.LastProcessedTimestamp) {
		return fmt.Errorf("cursor moved backwards: %v -> %v", f.cursor.LastProcessedTimestamp, c.LastProcessedTimestamp)
	}
	f.cursor = c
	return nil
}

func (f *fakePositionStore) EventsAfter(_ context.Context, since time.Time, sinceID models.EventID, kinds []models.EventKind, limit int) ([]models.Event, error) {
	wanted := map[models.EventKind]bool{}
	for _, k := range kinds {
		wanted[k] = true
	}
	var out []models.Event
	for _, ev := range f.events {
		if len(kinds) > 0 && !wanted[ev.Kind] {
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

func (f *fakePositionStore) PositionLogExists(_ context.Context, id models.EventID) (bool, error) {
	_, ok := f.logs[id]
	return ok, nil
}

func (f *fakePositionStore) GetActivePosition(_ context.Context, owner string, location models.Location) (*models.LandPosition, error) {
	for _, p := range f.positions {
		if p.Owner == models.NormalizeAddress(owner) && p.Location == location && p.Status == models.PositionActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePositionStore) CreatePosition(_ context.Context, p models.LandPosition, logEntry models.PositionEventLog) error {
	if err := f.failKinds[models.KindLandBought]; err != nil && p.EntryType == models.EntryTypeBuy {
		return err
	}
	cp := p
	f.positions[p.PositionID] = &cp
	f.logs[logEntry.BlockchainEventID] = logEntry
	return nil
}

func (f *fakePositionStore) ClosePosition(_ context.Context, positionID string, exitPrice, stakeRefunded models.U256, exitType string, at time.Time, eventID models.EventID, logEntry models.PositionEventLog) error {
	p, ok := f.positions[positionID]
	if !ok || p.Status != models.PositionActive {
		return fmt.Errorf("position %s is not active", positionID)
	}
	p.ExitPrice = &exitPrice
	p.ExitStakeRefunded = &stakeRefunded
	p.ExitType = &exitType
	p.ExitTimestamp = &at
	p.ExitEventID = &eventID
	p.Status = models.PositionClosed
	f.logs[logEntry.BlockchainEventID] = logEntry
	return nil
}

func (f *fakePositionStore) SetInitialStake(_ context.Context, positionID string, amount models.U256, logEntry models.PositionEventLog) error {
	f.positions[positionID].InitialStake = amount
	f.logs[logEntry.BlockchainEventID] = logEntry
	return nil
}

func (f *fakePositionStore) AddStakeToPosition(_ context.Context, positionID string, amount models.U256, logEntry models.PositionEventLog) error {
	p := f.positions[positionID]
	p.TotalStakeAdded = p.TotalStakeAdded.Add(amount)
	f.logs[logEntry.BlockchainEventID] = logEntry
	return nil
}

func (f *fakePositionStore) AddTaxEarned(_ context.Context, positionID, token string, amount models.U256, logEntry models.PositionEventLog) error {
	p := f.positions[positionID]
	if p.TaxesEarnedByToken == nil {
		p.TaxesEarnedByToken = map[string]models.U256{}
	}
	key := models.NormalizeAddress(token)
	p.TaxesEarnedByToken[key] = p.TaxesEarnedByToken[key].Add(amount)
	f.logs[logEntry.BlockchainEventID] = logEntry
	return nil
}

func (f *fakePositionStore) AddTaxPaid(_ context.Context, positionID string, amount models.U256, logEntry models.PositionEventLog) error {
	p := f.positions[positionID]
	p.TaxesPaidAmount = p.TaxesPaidAmount.Add(amount)
	f.logs[logEntry.BlockchainEventID] = logEntry
	return nil
}

func (f *fakePositionStore) GetLand(_ context.Context, location models.Location) (*models.Land, error) {
	if l, ok := f.lands[location]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

func (f *fakePositionStore) GetLandStake(_ context.Context, location models.Location) (*models.LandStake, error) {
	if s, ok := f.stakes[location]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *fakePositionStore) LogIndexingError(_ context.Context, worker string, eventID models.EventID, errType, message string, _ any) error {
	f.errLog = append(f.errLog, fmt.Sprintf("%s %s %s: %s", worker, eventID, errType, message))
	return nil
}

func (f *fakePositionStore) activeAt(t *testing.T, owner string, loc models.Location) *models.LandPosition {
	t.Helper()
	p, _ := f.GetActivePosition(context.Background(), owner, loc)
	return p
}

var pnlBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func pnlEvent(i int, payload models.EventPayload) models.Event {
	return models.Event{
		ID:      models.EventID(fmt.Sprintf("%d:0:0", 100+i)),
		At:      pnlBase.Add(time.Duration(i) * time.Minute),
		Kind:    payload.EventKind(),
		Payload: payload,
	}
}

func TestPnlDeriverAuctionOpensPosition(t *testing.T) {
	store := newFakePositionStore()
	store.lands[models.LocationFromXY(3, 2)] = &models.Land{
		Location:  models.LocationFromXY(3, 2),
		Owner:     "0xabc",
		TokenUsed: "0x11",
	}
	price := models.MustU256("1000000000000000000")
	store.events = []models.Event{
		pnlEvent(0, models.AuctionFinishedPayload{
			Location: models.LocationFromXY(3, 2),
			Buyer:    "0xabc",
			Price:    price,
		}),
	}

	d := NewPnlDeriver(store, nil, time.Second, "0xdefa")
	d.process(context.Background())

	p := store.activeAt(t, "0xabc", models.LocationFromXY(3, 2))
	if p == nil {
		t.Fatal("no position opened")
	}
	if p.EntryType != models.EntryTypeAuction {
		t.Fatalf("entry_type = %s", p.EntryType)
	}
	if p.EntryToken != models.NormalizeAddress("0x11") {
		t.Fatalf("entry_token = %s, want land snapshot token", p.EntryToken)
	}
	// fee = floor(1e18 * 900000 / 10000000) = 9e16
	if p.TotalBuyFee.Dec() != "90000000000000000" {
		t.Fatalf("total_buy_fee = %s", p.TotalBuyFee.Dec())
	}
	if store.cursor.LastProcessedEventID != store.events[0].ID {
		t.Fatalf("cursor = %+v", store.cursor)
	}
}

func TestPnlDeriverBuyClosesSellerAndOpensBuyer(t *testing.T) {
	store := newFakePositionStore()
	loc := models.LocationFromXY(5, 5)
	price := models.MustU256("2000000000000000000")
	stake := models.MustU256("500000000000000000")
	store.events = []models.Event{
		pnlEvent(0, models.AuctionFinishedPayload{Location: loc, Buyer: "0xaaa", Price: models.U256FromUint64(100)}),
		pnlEvent(1, models.AddStakePayload{Owner: "0xaaa", Location: loc, NewStakeAmount: stake}),
		pnlEvent(2, models.LandBoughtPayload{
			Buyer: "0xbbb", Seller: "0xaaa", Location: loc,
			SoldPrice: price, TokenUsed: "0x11",
		}),
	}

	d := NewPnlDeriver(store, nil, time.Second, "0xdefa")
	d.process(context.Background())

	if p := store.activeAt(t, "0xaaa", loc); p != nil {
		t.Fatal("seller position still active")
	}
	var closed *models.LandPosition
	for _, p := range store.positions {
		if p.Owner == models.NormalizeAddress("0xaaa") {
			closed = p
		}
	}
	if closed == nil || closed.Status != models.PositionClosed {
		t.Fatal("seller position not closed")
	}
	if *closed.ExitType != models.ExitTypeSold {
		t.Fatalf("exit_type = %s", *closed.ExitType)
	}
	if !closed.ExitPrice.Eq(price) {
		t.Fatalf("exit_price = %s", closed.ExitPrice.Dec())
	}
	// No taxes paid, so the whole stake comes back.
	if !closed.ExitStakeRefunded.Eq(stake) {
		t.Fatalf("exit_stake_refunded = %s, want %s", closed.ExitStakeRefunded.Dec(), stake.Dec())
	}

	buyer := store.activeAt(t, "0xbbb", loc)
	if buyer == nil {
		t.Fatal("buyer position not opened")
	}
	if buyer.EntryType != models.EntryTypeBuy || !buyer.EntryPrice.Eq(price) {
		t.Fatalf("buyer entry = %s %s", buyer.EntryType, buyer.EntryPrice.Dec())
	}
}

func TestPnlDeriverSelfBuySettlesWithoutReopen(t *testing.T) {
	store := newFakePositionStore()
	loc := models.LocationFromXY(6, 3)
	store.events = []models.Event{
		pnlEvent(0, models.AuctionFinishedPayload{Location: loc, Buyer: "0xaaa", Price: models.U256FromUint64(100)}),
		pnlEvent(1, models.LandBoughtPayload{
			Buyer: "0xAAA", Seller: "0xaaa", Location: loc,
			SoldPrice: models.U256FromUint64(300), TokenUsed: "0x11",
		}),
	}

	d := NewPnlDeriver(store, nil, time.Second, "0xdefa")
	d.process(context.Background())

	if len(store.positions) != 1 {
		t.Fatalf("got %d positions, want the settled one only", len(store.positions))
	}
	if p := store.activeAt(t, "0xaaa", loc); p != nil {
		t.Fatal("self-buy left an active position")
	}
	for _, p := range store.positions {
		if p.Status != models.PositionClosed || *p.ExitType != models.ExitTypeSold {
			t.Fatalf("position = %s %v", p.Status, p.ExitType)
		}
	}
}

func TestPnlDeriverOpenSeedsInitialStake(t *testing.T) {
	store := newFakePositionStore()
	loc := models.LocationFromXY(8, 2)
	stake := models.MustU256("700000000000000000")
	store.stakes[loc] = &models.LandStake{Location: loc, Amount: stake}
	store.events = []models.Event{
		pnlEvent(0, models.AuctionFinishedPayload{Location: loc, Buyer: "0xaaa", Price: models.U256FromUint64(100)}),
		// Restates the same total, so it must fold to a zero delta.
		pnlEvent(1, models.AddStakePayload{Owner: "0xaaa", Location: loc, NewStakeAmount: stake}),
		pnlEvent(2, models.LandBoughtPayload{
			Buyer: "0xbbb", Seller: "0xaaa", Location: loc,
			SoldPrice: models.U256FromUint64(200), TokenUsed: "0x11",
		}),
	}

	d := NewPnlDeriver(store, nil, time.Second, "0xdefa")
	d.process(context.Background())

	var closed *models.LandPosition
	for _, p := range store.positions {
		if p.Owner == models.NormalizeAddress("0xaaa") {
			closed = p
		}
	}
	if closed == nil || closed.Status != models.PositionClosed {
		t.Fatal("seller position not closed")
	}
	if !closed.InitialStake.Eq(stake) {
		t.Fatalf("initial_stake = %s, want the land stake snapshot", closed.InitialStake.Dec())
	}
	if !closed.TotalStakeAdded.IsZero() {
		t.Fatalf("total_stake_added = %s, want 0", closed.TotalStakeAdded.Dec())
	}
	if !closed.ExitStakeRefunded.Eq(stake) {
		t.Fatalf("exit_stake_refunded = %s, want %s", closed.ExitStakeRefunded.Dec(), stake.Dec())
	}
}

func TestPnlDeriverNukeClosesWithoutRefund(t *testing.T) {
	store := newFakePositionStore()
	loc := models.LocationFromXY(1, 1)
	store.events = []models.Event{
		pnlEvent(0, models.AuctionFinishedPayload{Location: loc, Buyer: "0xccc", Price: models.U256FromUint64(100)}),
		pnlEvent(1, models.AddStakePayload{Owner: "0xccc", Location: loc, NewStakeAmount: models.U256FromUint64(400)}),
		pnlEvent(2, models.LandNukedPayload{OwnerNuked: "0xccc", Location: loc}),
	}

	d := NewPnlDeriver(store, nil, time.Second, "0xdefa")
	d.process(context.Background())

	var closed *models.LandPosition
	for _, p := range store.positions {
		closed = p
	}
	if closed == nil || closed.Status != models.PositionClosed {
		t.Fatal("position not closed")
	}
	if *closed.ExitType != models.ExitTypeNuked {
		t.Fatalf("exit_type = %s", *closed.ExitType)
	}
	if !closed.ExitStakeRefunded.IsZero() || !closed.ExitPrice.IsZero() {
		t.Fatal("nuke must not refund stake or record an exit price")
	}
}

func TestPnlDeriverStakeAccounting(t *testing.T) {
	store := newFakePositionStore()
	loc := models.LocationFromXY(7, 7)
	store.events = []models.Event{
		pnlEvent(0, models.AuctionFinishedPayload{Location: loc, Buyer: "0xddd", Price: models.U256FromUint64(100)}),
		pnlEvent(1, models.AddStakePayload{Owner: "0xddd", Location: loc, NewStakeAmount: models.U256FromUint64(1000)}),
		pnlEvent(2, models.AddStakePayload{Owner: "0xddd", Location: loc, NewStakeAmount: models.U256FromUint64(1600)}),
	}

	d := NewPnlDeriver(store, nil, time.Second, "0xdefa")
	d.process(context.Background())

	p := store.activeAt(t, "0xddd", loc)
	if p == nil {
		t.Fatal("no position")
	}
	if p.InitialStake.Uint64() != 1000 {
		t.Fatalf("initial_stake = %s, want 1000", p.InitialStake.Dec())
	}
	if p.TotalStakeAdded.Uint64() != 600 {
		t.Fatalf("total_stake_added = %s, want 600", p.TotalStakeAdded.Dec())
	}
}

func TestPnlDeriverTransferTaxes(t *testing.T) {
	store := newFakePositionStore()
	from := models.LocationFromXY(4, 4)
	to := models.LocationFromXY(4, 5)
	store.lands[from] = &models.Land{Location: from, Owner: "0xaaa"}
	store.lands[to] = &models.Land{Location: to, Owner: "0xbbb"}
	store.events = []models.Event{
		pnlEvent(0, models.AuctionFinishedPayload{Location: from, Buyer: "0xaaa", Price: models.U256FromUint64(100)}),
		pnlEvent(1, models.AuctionFinishedPayload{Location: to, Buyer: "0xbbb", Price: models.U256FromUint64(100)}),
		pnlEvent(2, models.LandTransferPayload{
			FromLocation: from, ToLocation: to,
			TokenAddress: "0x11", Amount: models.U256FromUint64(250),
		}),
	}

	d := NewPnlDeriver(store, nil, time.Second, "0xdefa")
	d.process(context.Background())

	payer := store.activeAt(t, "0xaaa", from)
	if payer.TaxesPaidAmount.Uint64() != 250 {
		t.Fatalf("taxes_paid = %s, want 250", payer.TaxesPaidAmount.Dec())
	}
	earner := store.activeAt(t, "0xbbb", to)
	got := earner.TaxesEarnedByToken[models.NormalizeAddress("0x11")]
	if got.Uint64() != 250 {
		t.Fatalf("taxes_earned = %s, want 250", got.Dec())
	}

	if typ := store.logs[actID(store.events[2].ID, "tax_in")].EventType; typ != models.PositionLogTaxIn {
		t.Fatalf("inflow log type = %s, want %s", typ, models.PositionLogTaxIn)
	}
	if typ := store.logs[actID(store.events[2].ID, "tax_out")].EventType; typ != models.PositionLogTaxOut {
		t.Fatalf("outflow log type = %s, want %s", typ, models.PositionLogTaxOut)
	}
}

func TestPnlDeriverIdempotent(t *testing.T) {
	store := newFakePositionStore()
	loc := models.LocationFromXY(9, 9)
	store.events = []models.Event{
		pnlEvent(0, models.AuctionFinishedPayload{Location: loc, Buyer: "0xeee", Price: models.U256FromUint64(100)}),
	}

	d := NewPnlDeriver(store, nil, time.Second, "0xdefa")
	d.process(context.Background())

	// Rewind the cursor to force a replay of the same event.
	store.cursor = models.PnlCursor{}
	d.process(context.Background())

	if len(store.positions) != 1 {
		t.Fatalf("replay created %d positions, want 1", len(store.positions))
	}
}

func TestPnlDeriverPoisonEventBypassed(t *testing.T) {
	store := newFakePositionStore()
	loc := models.LocationFromXY(2, 8)
	store.failKinds[models.KindLandBought] = errors.New("boom")
	store.events = []models.Event{
		pnlEvent(0, models.LandBoughtPayload{
			Buyer: "0xfff", Seller: models.ZeroAddress, Location: loc,
			SoldPrice: models.U256FromUint64(100), TokenUsed: "0x11",
		}),
		pnlEvent(1, models.AuctionFinishedPayload{Location: loc, Buyer: "0xabc", Price: models.U256FromUint64(50)}),
	}

	d := NewPnlDeriver(store, nil, time.Second, "0xdefa")
	// First two attempts stall the cursor on the failing event.
	d.process(context.Background())
	d.process(context.Background())
	if store.cursor.LastProcessedEventID == store.events[1].ID {
		t.Fatal("cursor passed the failing event before giving up")
	}

	// Third attempt records the error and moves past it.
	d.process(context.Background())
	if len(store.errLog) != 1 {
		t.Fatalf("errLog = %v, want one entry", store.errLog)
	}
	if store.cursor.LastProcessedEventID != store.events[1].ID {
		t.Fatalf("cursor = %+v, want past the poison event", store.cursor)
	}
	if store.activeAt(t, "0xabc", loc) == nil {
		t.Fatal("event after the poison one was not processed")
	}
}
