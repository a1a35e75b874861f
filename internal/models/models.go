package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Land is the latest upstream snapshot of a map cell. At most one row per
// location is kept; newer `At` wins.
type Land struct {
	ID              EventID   `json:"id"`
	At              time.Time `json:"at"`
	Location        Location  `json:"location"`
	Owner           string    `json:"owner"`
	TokenUsed       string    `json:"token_used"`
	SellPrice       U256      `json:"sell_price"`
	Level           int       `json:"level"`
	BlockDateBought time.Time `json:"block_date_bought"`
}

// LandStake is the latest stake snapshot for a location, with the packed
// neighbors info already unpacked.
type LandStake struct {
	ID                            EventID   `json:"id"`
	At                            time.Time `json:"at"`
	Location                      Location  `json:"location"`
	Amount                        U256      `json:"amount"`
	EarliestClaimNeighborTime     time.Time `json:"earliest_claim_neighbor_time"`
	EarliestClaimNeighborLocation Location  `json:"earliest_claim_neighbor_location"`
	NumActiveNeighbors            int       `json:"num_active_neighbors"`
}

// Auction is upserted on location: one auction row per land.
type Auction struct {
	ID          EventID   `json:"id"`
	At          time.Time `json:"at"`
	Location    Location  `json:"location"`
	StartTime   time.Time `json:"start_time"`
	StartPrice  U256      `json:"start_price"`
	FloorPrice  U256      `json:"floor_price"`
	DecayRate   U256      `json:"decay_rate"`
	IsFinished  bool      `json:"is_finished"`
	SoldAtPrice *U256     `json:"sold_at_price,omitempty"`
}

// Position entry/exit discriminants.
const (
	EntryTypeAuction = "AUCTION"
	EntryTypeBuy     = "BUY"
	ExitTypeSold     = "SOLD"
	ExitTypeNuked    = "NUKED"

	PositionActive = "ACTIVE"
	PositionClosed = "CLOSED"
)

// LandPosition is the first-class PnL accounting entity. At most one
// ACTIVE row exists per (owner, location); a CLOSED row has every exit
// field set.
type LandPosition struct {
	PositionID     string    `json:"position_id"`
	Location       Location  `json:"land_location"`
	Owner          string    `json:"owner_address"`
	TokenUsed      string    `json:"token_used"`
	EntryPrice     U256      `json:"entry_price"`
	EntryToken     string    `json:"entry_token"`
	EntryType      string    `json:"entry_type"`
	EntryTimestamp time.Time `json:"entry_timestamp"`
	EntryEventID   EventID   `json:"entry_event_id"`

	InitialStake       U256            `json:"initial_stake"`
	TotalStakeAdded    U256            `json:"total_stake_added"`
	TaxesEarnedByToken map[string]U256 `json:"taxes_earned_by_token"`
	TaxesPaidAmount    U256            `json:"taxes_paid_amount"`
	TotalBuyFee        U256            `json:"total_buy_fee"`
	TotalClaimFees     U256            `json:"total_claim_fees"`

	ExitPrice         *U256      `json:"exit_price,omitempty"`
	ExitStakeRefunded *U256      `json:"exit_stake_refunded,omitempty"`
	ExitTimestamp     *time.Time `json:"exit_timestamp,omitempty"`
	ExitType          *string    `json:"exit_type,omitempty"`
	ExitEventID       *EventID   `json:"exit_event_id,omitempty"`

	Status       string   `json:"status"`
	ValueInUSDC  *float64 `json:"value_in_usdc,omitempty"`
}

// Position event log types.
const (
	PositionLogCreated    = "CREATED"
	PositionLogClosed     = "CLOSED"
	PositionLogTaxIn      = "TAX_IN"
	PositionLogTaxOut     = "TAX_OUT"
	PositionLogStakeAdded = "STAKE_ADDED"
)

// PositionEventLog records one derivation act. BlockchainEventID is the
// idempotency key: reprocessing the same chain event is a no-op.
type PositionEventLog struct {
	LogID             string          `json:"log_id"`
	PositionID        string          `json:"position_id"`
	EventType         string          `json:"event_type"`
	EventData         json.RawMessage `json:"event_data"`
	Timestamp         time.Time       `json:"timestamp"`
	BlockchainEventID EventID         `json:"blockchain_event_id"`
}

// PnlCursor is the position deriver's singleton monotonic cursor.
type PnlCursor struct {
	LastProcessedTimestamp time.Time `json:"last_processed_timestamp"`
	LastProcessedEventID   EventID   `json:"last_processed_event_id"`
}

// Historical close reasons (lowercase by contract with the leaderboard
// consumers).
const (
	CloseReasonBought = "bought"
	CloseReasonNuked  = "nuked"
)

// LandHistorical is the flat, duplicate-of-position schema consumed by
// leaderboards and drop analytics.
type LandHistorical struct {
	ID           string    `json:"id"`
	At           time.Time `json:"at"`
	Owner        string    `json:"owner"`
	LandLocation Location  `json:"land_location"`
	TimeBought   time.Time `json:"time_bought"`

	CloseDate   *time.Time `json:"close_date,omitempty"`
	CloseReason *string    `json:"close_reason,omitempty"`

	BuyCostToken *U256    `json:"buy_cost_token,omitempty"`
	BuyCostUSD   *float64 `json:"buy_cost_usd,omitempty"`
	BuyTokenUsed *string  `json:"buy_token_used,omitempty"`

	SaleRevenueToken *U256    `json:"sale_revenue_token,omitempty"`
	SaleRevenueUSD   *float64 `json:"sale_revenue_usd,omitempty"`
	SaleTokenUsed    *string  `json:"sale_token_used,omitempty"`

	TokenInflows  map[string]U256 `json:"token_inflows"`
	TokenOutflows map[string]U256 `json:"token_outflows"`
}

// HistoricalID builds the land_historical primary key. Same-ms replays
// of the same open collapse to the same row.
func HistoricalID(owner string, location Location, boughtAt time.Time) string {
	return fmt.Sprintf("%s_%s_%d", NormalizeAddress(owner), location.Display(), boughtAt.Unix())
}

// WalletActivity tracks per-address first/last seen and event counts.
type WalletActivity struct {
	Address         string    `json:"address"`
	FirstActivityAt time.Time `json:"first_activity_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	ActivityCount   int64     `json:"activity_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HistoricalPriceFeed is an append-only price sample.
type HistoricalPriceFeed struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	USDRatio  *float64  `json:"usd_ratio,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Token is a registry entry from config, with decimals possibly refreshed
// from the chain.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}
