package models

import (
	"testing"
	"time"
)

func TestUnpackNeighborsInfo(t *testing.T) {
	t.Parallel()

	loc := LocationFromXY(10, 10)
	count := uint64(5)
	ts := uint64(1_700_000_000)

	p := U256FromUint64(uint64(loc) | count<<16 | ts<<24)

	info := UnpackNeighborsInfo(p)
	if info.EarliestClaimNeighborLocation != loc {
		t.Fatalf("location: got %v want %v", info.EarliestClaimNeighborLocation, loc)
	}
	if info.NumActiveNeighbors != int(count) {
		t.Fatalf("count: got %d want %d", info.NumActiveNeighbors, count)
	}
	if want := time.Unix(int64(ts), 0).UTC(); !info.EarliestClaimNeighborTime.Equal(want) {
		t.Fatalf("time: got %v want %v", info.EarliestClaimNeighborTime, want)
	}
}

func TestUnpackNeighborsInfoZero(t *testing.T) {
	t.Parallel()

	info := UnpackNeighborsInfo(U256{})
	if info.EarliestClaimNeighborLocation != 0 || info.NumActiveNeighbors != 0 {
		t.Fatalf("zero unpack: got %+v", info)
	}
	if info.EarliestClaimNeighborTime.Unix() != 0 {
		t.Fatalf("zero time: got %v", info.EarliestClaimNeighborTime)
	}
}
