package ledger

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/niyobern/okx-binance/internal/model"
)

// Position sizes are truncated to five fractional digits so an order never
// commits more capital than is available.
const sizePrecision = 5

var (
	// ErrPositionOpen is returned when a second position is attempted while
	// one is already open.
	ErrPositionOpen = errors.New("ledger: a position is already open")
	// ErrCapitalReduced is returned when available capital is below the
	// initial capital, which means an earlier cycle has not fully settled.
	ErrCapitalReduced = errors.New("ledger: available capital below initial capital")
	// ErrNoPosition is returned when completing or updating a symbol with no
	// open position.
	ErrNoPosition = errors.New("ledger: no open position for symbol")
)

// Ledger is the single-position capital account. All open/complete
// transitions go through one mutex so two near-simultaneous ticks can never
// both pass the gate.
//
// The capital model is a fixed notional recycled per cycle: all capital is
// locked while a position is open and available capital is reset to the
// initial capital on completion. Realized profit is recorded by settlement
// but never compounded here.
type Ledger struct {
	mu               sync.Mutex
	logger           *slog.Logger
	initialCapital   decimal.Decimal
	availableCapital decimal.Decimal
	minProfitPercent decimal.Decimal
	trading          bool
	position         *model.Position
}

// New creates a ledger with the given initial capital (USDT) and minimum
// profit threshold (percent).
func New(logger *slog.Logger, initialCapital, minProfitPercent decimal.Decimal) *Ledger {
	return &Ledger{
		logger:           logger.With("component", "ledger"),
		initialCapital:   initialCapital,
		availableCapital: initialCapital,
		minProfitPercent: minProfitPercent,
	}
}

// MinProfitPercent returns the minimum fee-adjusted profit required to trade.
func (l *Ledger) MinProfitPercent() decimal.Decimal {
	return l.minProfitPercent
}

// CanOpenPosition reports whether a new position is allowed: no position is
// open and the full initial capital is available.
func (l *Ledger) CanOpenPosition() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.trading && l.availableCapital.GreaterThanOrEqual(l.initialCapital)
}

// CalculatePositionSize returns the maximum quantity purchasable with the
// available capital at the given price, rounded down to five fractional
// digits. A non-positive price yields a zero quantity.
func (l *Ledger) CalculatePositionSize(buyPrice decimal.Decimal) decimal.Decimal {
	if !buyPrice.IsPositive() {
		return decimal.Zero
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// QuoRem truncates toward zero, so quantity*price never exceeds the
	// available capital.
	quantity, _ := l.availableCapital.QuoRem(buyPrice, sizePrecision)
	return quantity
}

// OpenPosition atomically re-checks the gate, reserves capital for the plan
// and records the opening position. It is the only way the ledger enters the
// trading state.
func (l *Ledger) OpenPosition(plan *model.TradePlan) (*model.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.trading {
		return nil, ErrPositionOpen
	}
	if l.availableCapital.LessThan(l.initialCapital) {
		return nil, ErrCapitalReduced
	}

	l.trading = true
	l.availableCapital = l.availableCapital.Sub(plan.TotalCost).Sub(plan.TransferFees)
	l.position = &model.Position{
		ID:           plan.ID,
		Symbol:       plan.Symbol,
		BuyVenue:     plan.BuyVenue,
		SellVenue:    plan.SellVenue,
		Quantity:     plan.Quantity,
		BuyPrice:     plan.BuyPrice,
		SellPrice:    plan.SellPrice,
		TransferFees: plan.TransferFees,
		Status:       model.StatusOpening,
		OpenedAt:     time.Now(),
	}

	l.logger.Info("position opened",
		"symbol", plan.Symbol,
		"buy_venue", plan.BuyVenue,
		"sell_venue", plan.SellVenue,
		"quantity", plan.Quantity,
		"total_cost", plan.TotalCost,
		"remaining_capital", l.availableCapital,
	)
	pos := *l.position
	return &pos, nil
}

// SetStatus transitions the open position to a new settlement step.
func (l *Ledger) SetStatus(symbol string, status model.PositionStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.position == nil || l.position.Symbol != symbol {
		return ErrNoPosition
	}
	l.position.Status = status
	return nil
}

// CompletePosition marks the open position completed, restores available
// capital to the initial capital and clears the trading flag. This is the
// sole path back to a tradable state.
func (l *Ledger) CompletePosition(symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.position == nil || l.position.Symbol != symbol {
		return ErrNoPosition
	}
	l.position.Status = model.StatusCompleted
	l.position = nil
	l.availableCapital = l.initialCapital
	l.trading = false
	l.logger.Info("position completed, capital restored",
		"symbol", symbol,
		"available_capital", l.availableCapital,
	)
	return nil
}

// MarkStuck records that the open position needs manual intervention. The
// capital reservation is kept and the trading flag stays set: the ledger
// cannot know what state the venues actually reached, so release is an
// operator decision, never automatic.
func (l *Ledger) MarkStuck(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.position == nil || l.position.Symbol != symbol {
		return
	}
	l.position.Status = model.StatusStuck
	l.logger.Error("position stuck, manual intervention required",
		"symbol", symbol,
		"buy_venue", l.position.BuyVenue,
		"sell_venue", l.position.SellVenue,
		"quantity", l.position.Quantity,
		"opened_at", l.position.OpenedAt,
	)
}

// Position returns a copy of the open position, if any.
func (l *Ledger) Position() (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.position == nil {
		return model.Position{}, false
	}
	return *l.position, true
}

// AvailableCapital returns the current available capital.
func (l *Ledger) AvailableCapital() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.availableCapital
}
