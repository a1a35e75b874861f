package ingester

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/torii"
)

func rawEvent(name, id, data string) torii.RawEvent {
	return torii.RawEvent{
		Name:    name,
		Data:    json.RawMessage(data),
		At:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		EventID: models.EventID(id),
	}
}

func TestParseEventLandBought(t *testing.T) {
	raw := rawEvent("LandBought", "100:0:1", `{
		"buyer": "0xabc",
		"seller": "0xdef",
		"land_location": 515,
		"sold_price": "0xde0b6b3a7640000",
		"token_used": "0x11"
	}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Kind != models.KindLandBought {
		t.Fatalf("kind = %s", ev.Kind)
	}
	p, ok := ev.Payload.(models.LandBoughtPayload)
	if !ok {
		t.Fatalf("payload is %T", ev.Payload)
	}
	if p.Location.X() != 3 || p.Location.Y() != 2 {
		t.Fatalf("location = (%d,%d), want (3,2)", p.Location.X(), p.Location.Y())
	}
	if p.SoldPrice.Dec() != "1000000000000000000" {
		t.Fatalf("sold_price = %s", p.SoldPrice.Dec())
	}
}

func TestParseEventLocationAsString(t *testing.T) {
	raw := rawEvent("LandNuked", "100:0:2", `{"owner_nuked": "0xabc", "land_location": "0x203"}`)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := ev.Payload.(models.LandNukedPayload)
	if int(p.Location) != 0x203 {
		t.Fatalf("location = %d, want %d", p.Location, 0x203)
	}
}

func TestParseEventUnknownName(t *testing.T) {
	_, err := ParseEvent(rawEvent("SomethingElse", "100:0:3", `{}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("err = %v, want ErrUnknownEvent", err)
	}
}

func TestParseEventBadID(t *testing.T) {
	if _, err := ParseEvent(rawEvent("LandNuked", "not-an-id", `{}`)); err == nil {
		t.Fatal("expected error for malformed event id")
	}
}

func TestParseEventBadPayload(t *testing.T) {
	if _, err := ParseEvent(rawEvent("AddStake", "100:0:4", `{"new_stake_amount": []}`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
