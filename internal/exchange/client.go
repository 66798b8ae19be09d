package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/niyobern/okx-binance/internal/model"
)

// ErrNoTransactionID is returned when a withdrawal was accepted but the venue
// did not hand back a transaction identifier to track the transfer with.
var ErrNoTransactionID = errors.New("exchange: withdrawal returned no transaction id")

// ErrRepayRejected is returned when a margin loan repayment response did not
// carry the venue's explicit success marker.
var ErrRepayRejected = errors.New("exchange: loan repayment not confirmed by venue")

// Client defines the standard interface for all exchange clients: a ticker
// stream plus the signed trading operations the settlement cycle needs.
// Every response is untrusted until its fill/success field has been checked;
// implementations do that checking and expose only normalized results.
type Client interface {
	Name() model.Venue

	// StreamTicks maintains a ticker subscription for the configured symbol
	// set and pushes normalized price ticks until ctx is cancelled. It
	// reconnects on any stream error and never returns one.
	StreamTicks(ctx context.Context, ticks chan<- model.PriceTick) error

	PlaceSpotMarketBuy(ctx context.Context, symbol string, qty decimal.Decimal) (model.OrderResult, error)
	PlaceMarginMarketShort(ctx context.Context, symbol string, qty decimal.Decimal) (model.OrderResult, error)

	// RepayMarginLoan repays a borrowed asset and verifies the venue's
	// success marker, returning ErrRepayRejected when it is absent.
	RepayMarginLoan(ctx context.Context, asset string, qty decimal.Decimal) error

	// Withdraw moves an asset to an external address and returns the
	// venue-issued transaction id, or ErrNoTransactionID.
	Withdraw(ctx context.Context, asset string, qty decimal.Decimal, address, network string) (string, error)

	// ConfirmedDeposits lists completed deposits for an asset.
	ConfirmedDeposits(ctx context.Context, asset string) ([]model.Deposit, error)
}
