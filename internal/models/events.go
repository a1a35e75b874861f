package models

import "time"

// EventKind is the closed set of on-chain event names the ingester
// understands. The string values match the event names emitted by the
// world contract and are the canonical persistence keys.
type EventKind string

const (
	KindAddStake          EventKind = "AddStake"
	KindAuctionFinished   EventKind = "AuctionFinished"
	KindLandBought        EventKind = "LandBought"
	KindLandNuked         EventKind = "LandNuked"
	KindNewAuction        EventKind = "NewAuction"
	KindLandTransfer      EventKind = "LandTransfer"
	KindAddressAuthorized EventKind = "AddressAuthorized"
	KindAddressRemoved    EventKind = "AddressRemoved"
	KindVerifierUpdated   EventKind = "VerifierUpdated"
)

// DerivedKinds are the events fanned out to the position, history and
// wallet derivers after ingestion.
var DerivedKinds = map[EventKind]bool{
	KindAddStake:        true,
	KindAuctionFinished: true,
	KindLandBought:      true,
	KindLandNuked:       true,
	KindLandTransfer:    true,
}

// Event is a canonical, immutable on-chain event. Payload holds the
// per-kind record; persistence writes one row into `event` plus one row
// into the per-kind table.
type Event struct {
	ID      EventID
	At      time.Time
	Kind    EventKind
	Payload EventPayload
}

// EventPayload is the tagged variant carried by Event.
type EventPayload interface {
	EventKind() EventKind
}

type AddStakePayload struct {
	Owner          string   `json:"owner"`
	Location       Location `json:"land_location"`
	NewStakeAmount U256     `json:"new_stake_amount"`
}

type AuctionFinishedPayload struct {
	Location  Location `json:"land_location"`
	Buyer     string   `json:"buyer"`
	Price     U256     `json:"final_price"`
	TokenUsed string   `json:"token_used,omitempty"` // not carried by the contract event; may be empty
}

type LandBoughtPayload struct {
	Buyer     string   `json:"buyer"`
	Seller    string   `json:"seller"`
	Location  Location `json:"land_location"`
	SoldPrice U256     `json:"sold_price"`
	TokenUsed string   `json:"token_used"`
}

type LandNukedPayload struct {
	OwnerNuked string   `json:"owner_nuked"`
	Location   Location `json:"land_location"`
}

type NewAuctionPayload struct {
	Location   Location `json:"land_location"`
	StartTime  int64    `json:"start_time"`
	StartPrice U256     `json:"start_price"`
	FloorPrice U256     `json:"floor_price"`
	DecayRate  U256     `json:"decay_rate"`
}

type LandTransferPayload struct {
	FromLocation Location `json:"from_location"`
	ToLocation   Location `json:"to_location"`
	TokenAddress string   `json:"token_address"`
	Amount       U256     `json:"amount"`
}

type AddressAuthorizedPayload struct {
	Address      string `json:"address"`
	AuthorizedAt int64  `json:"authorized_at"`
}

type AddressRemovedPayload struct {
	Address   string `json:"address"`
	RemovedAt int64  `json:"removed_at"`
}

type VerifierUpdatedPayload struct {
	NewVerifier string `json:"new_verifier"`
	OldVerifier string `json:"old_verifier"`
}

func (AddStakePayload) EventKind() EventKind          { return KindAddStake }
func (AuctionFinishedPayload) EventKind() EventKind   { return KindAuctionFinished }
func (LandBoughtPayload) EventKind() EventKind        { return KindLandBought }
func (LandNukedPayload) EventKind() EventKind         { return KindLandNuked }
func (NewAuctionPayload) EventKind() EventKind        { return KindNewAuction }
func (LandTransferPayload) EventKind() EventKind      { return KindLandTransfer }
func (AddressAuthorizedPayload) EventKind() EventKind { return KindAddressAuthorized }
func (AddressRemovedPayload) EventKind() EventKind    { return KindAddressRemoved }
func (VerifierUpdatedPayload) EventKind() EventKind   { return KindVerifierUpdated }
