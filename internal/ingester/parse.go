package ingester

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/torii"
)

// ErrUnknownEvent marks upstream event names outside the indexed set.
// The ingester skips these without logging an error.
var ErrUnknownEvent = errors.New("unknown event name")

// ParseEvent converts one upstream envelope into a canonical event.
func ParseEvent(raw torii.RawEvent) (models.Event, error) {
	ev := models.Event{
		ID:   raw.EventID,
		At:   raw.At,
		Kind: models.EventKind(raw.Name),
	}
	if !ev.ID.Valid() {
		return ev, fmt.Errorf("malformed event id %q", raw.EventID)
	}

	var payload models.EventPayload
	var err error
	switch ev.Kind {
	case models.KindAddStake:
		var p models.AddStakePayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case models.KindAuctionFinished:
		var p models.AuctionFinishedPayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case models.KindLandBought:
		var p models.LandBoughtPayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case models.KindLandNuked:
		var p models.LandNukedPayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case models.KindNewAuction:
		var p models.NewAuctionPayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case models.KindLandTransfer:
		var p models.LandTransferPayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case models.KindAddressAuthorized:
		var p models.AddressAuthorizedPayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case models.KindAddressRemoved:
		var p models.AddressRemovedPayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case models.KindVerifierUpdated:
		var p models.VerifierUpdatedPayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	default:
		return ev, fmt.Errorf("%w: %s", ErrUnknownEvent, raw.Name)
	}
	if err != nil {
		return ev, fmt.Errorf("decode %s payload for %s: %w", ev.Kind, ev.ID, err)
	}

	ev.Payload = payload
	return ev, nil
}
