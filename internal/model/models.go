package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Venue identifies one of the two supported exchanges.
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueOKX     Venue = "okx"
)

// PriceTick represents a single last-trade price update from an exchange.
// The symbol is always in canonical concatenated form (e.g. "BTCUSDT");
// venue-specific formats are translated at the exchange client boundary.
type PriceTick struct {
	Venue  Venue
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

// TradePlan is the output of a single spread evaluation: which venue to buy,
// which to short, at what size. Buy price is always the lower of the two by
// construction.
type TradePlan struct {
	ID            string
	Symbol        string
	BuyVenue      Venue
	SellVenue     Venue
	BuyPrice      decimal.Decimal
	SellPrice     decimal.Decimal
	SpreadPercent decimal.Decimal
	ProfitPercent decimal.Decimal
	Quantity      decimal.Decimal
	TotalCost     decimal.Decimal
	TransferFees  decimal.Decimal
}

// PositionStatus tracks a position through execution and settlement.
type PositionStatus string

const (
	StatusOpening      PositionStatus = "opening"
	StatusFilled       PositionStatus = "filled"
	StatusTransferring PositionStatus = "transferring"
	StatusRepaying     PositionStatus = "repaying"
	StatusReturning    PositionStatus = "returning"
	StatusCompleted    PositionStatus = "completed"
	StatusStuck        PositionStatus = "stuck"
)

// Position is an open arbitrage position. At most one exists at a time.
type Position struct {
	ID           string
	Symbol       string
	BuyVenue     Venue
	SellVenue    Venue
	Quantity     decimal.Decimal
	BuyPrice     decimal.Decimal
	SellPrice    decimal.Decimal
	TransferFees decimal.Decimal
	Status       PositionStatus
	OpenedAt     time.Time
}

// OrderResult is the normalized outcome of a market order on either venue.
// Filled is derived from the venue's own fill/status fields by the client;
// callers must never infer success from anything else.
type OrderResult struct {
	Venue   Venue
	Symbol  string
	OrderID string
	Status  string
	Filled  bool
}

// Deposit is a confirmed deposit entry from a venue's deposit history.
type Deposit struct {
	Asset  string
	Amount decimal.Decimal
	TxID   string
}

// CompletedTrade represents a fully settled arbitrage trade to be logged.
type CompletedTrade struct {
	ID           int64           `db:"id"`
	Timestamp    time.Time       `db:"timestamp"`
	Symbol       string          `db:"symbol"`
	BuyVenue     string          `db:"buy_venue"`
	SellVenue    string          `db:"sell_venue"`
	Quantity     decimal.Decimal `db:"quantity"`
	BuyPrice     decimal.Decimal `db:"buy_price"`
	SellPrice    decimal.Decimal `db:"sell_price"`
	TransferFees decimal.Decimal `db:"transfer_fees"`
	GrossProfit  decimal.Decimal `db:"gross_profit"`
	NetProfit    decimal.Decimal `db:"net_profit"`
}
