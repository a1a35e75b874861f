package ingester

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/torii"
)

type fakeEntitySource struct {
	entities []torii.RawEntity
}

func (f *fakeEntitySource) LandAndStakeEntitiesAfter(_ context.Context, since time.Time) ([]torii.RawEntity, error) {
	var out []torii.RawEntity
	for _, e := range f.entities {
		if e.At.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeModelSink struct {
	lands    map[models.Location]models.Land
	stakes   map[models.Location]models.LandStake
	auctions map[models.Location]models.Auction
	errLog   int
}

func newFakeModelSink() *fakeModelSink {
	return &fakeModelSink{
		lands:    map[models.Location]models.Land{},
		stakes:   map[models.Location]models.LandStake{},
		auctions: map[models.Location]models.Auction{},
	}
}

func (f *fakeModelSink) MaxModelAt(context.Context) (time.Time, error) {
	var max time.Time
	for _, l := range f.lands {
		if l.At.After(max) {
			max = l.At
		}
	}
	for _, s := range f.stakes {
		if s.At.After(max) {
			max = s.At
		}
	}
	return max, nil
}

func (f *fakeModelSink) UpsertLand(_ context.Context, land models.Land) error {
	if existing, ok := f.lands[land.Location]; ok && existing.At.After(land.At) {
		return nil
	}
	f.lands[land.Location] = land
	return nil
}

func (f *fakeModelSink) UpsertLandStake(_ context.Context, stake models.LandStake) error {
	if existing, ok := f.stakes[stake.Location]; ok && existing.At.After(stake.At) {
		return nil
	}
	f.stakes[stake.Location] = stake
	return nil
}

func (f *fakeModelSink) UpsertAuction(_ context.Context, a models.Auction) error {
	if existing, ok := f.auctions[a.Location]; ok && existing.At.After(a.At) {
		return nil
	}
	f.auctions[a.Location] = a
	return nil
}

func (f *fakeModelSink) LogIndexingError(context.Context, string, models.EventID, string, string, any) error {
	f.errLog++
	return nil
}

func TestModelIngesterAppliesSnapshots(t *testing.T) {
	at := pnlBase
	// neighbors_info_packed: location 515, 5 active neighbors, ts 1748778000
	packed := uint64(515) | uint64(5)<<16 | uint64(1748778000)<<24
	source := &fakeEntitySource{entities: []torii.RawEntity{
		{Model: "Land", ID: "100:0:1", At: at, Data: json.RawMessage(`{
			"location": 515, "owner": "0xabc", "token_used": "0x11",
			"sell_price": "0xde0b6b3a7640000", "level": "First", "block_date_bought": 1748777000
		}`)},
		{Model: "LandStake", ID: "100:0:2", At: at, Data: json.RawMessage(
			`{"location": 515, "amount": "0x64", "neighbors_info_packed": ` + jsonUint(packed) + `}`)},
		{Model: "Auction", ID: "100:0:3", At: at, Data: json.RawMessage(`{
			"land_location": 515, "start_time": 1748777000, "start_price": "0x2",
			"floor_price": "0x1", "decay_rate": "0x0", "is_finished": false
		}`)},
	}}
	sink := newFakeModelSink()

	i := NewModelIngester(source, sink, time.Second)
	i.poll(context.Background())

	loc := models.Location(515)
	land, ok := sink.lands[loc]
	if !ok {
		t.Fatal("land not upserted")
	}
	if land.Level != 1 {
		t.Fatalf("level = %d, want 1 (\"First\")", land.Level)
	}
	if land.Owner != models.NormalizeAddress("0xabc") {
		t.Fatalf("owner = %s", land.Owner)
	}

	stake, ok := sink.stakes[loc]
	if !ok {
		t.Fatal("stake not upserted")
	}
	if stake.NumActiveNeighbors != 5 {
		t.Fatalf("num_active_neighbors = %d, want 5", stake.NumActiveNeighbors)
	}
	if stake.EarliestClaimNeighborLocation != loc {
		t.Fatalf("earliest claim location = %d", stake.EarliestClaimNeighborLocation)
	}

	if _, ok := sink.auctions[loc]; !ok {
		t.Fatal("auction not upserted")
	}
}

func TestModelIngesterRecordsBadEntity(t *testing.T) {
	source := &fakeEntitySource{entities: []torii.RawEntity{
		{Model: "Land", ID: "100:0:1", At: pnlBase, Data: json.RawMessage(`{"level": "Seventeenth"}`)},
		{Model: "Land", ID: "100:0:2", At: pnlBase, Data: json.RawMessage(`{"location": 7, "owner": "0xabc", "token_used": "0x11", "sell_price": "0x1", "level": 0, "block_date_bought": 0}`)},
	}}
	sink := newFakeModelSink()

	i := NewModelIngester(source, sink, time.Second)
	i.poll(context.Background())

	if sink.errLog != 1 {
		t.Fatalf("errLog = %d, want 1", sink.errLog)
	}
	if _, ok := sink.lands[models.Location(7)]; !ok {
		t.Fatal("good entity after the bad one was not applied")
	}
}

func jsonUint(v uint64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
