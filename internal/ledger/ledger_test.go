package ledger

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niyobern/okx-binance/internal/model"
)

func newTestLedger(t *testing.T, capital string) *Ledger {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return New(logger, decimal.RequireFromString(capital), decimal.RequireFromString("0.5"))
}

func testPlan(symbol string) *model.TradePlan {
	return &model.TradePlan{
		ID:           "plan-" + symbol,
		Symbol:       symbol,
		BuyVenue:     model.VenueBinance,
		SellVenue:    model.VenueOKX,
		BuyPrice:     decimal.NewFromInt(60000),
		SellPrice:    decimal.NewFromInt(61200),
		Quantity:     decimal.RequireFromString("0.03"),
		TotalCost:    decimal.NewFromInt(1800),
		TransferFees: decimal.NewFromInt(5),
	}
}

func TestCalculatePositionSize_NeverOverCommits(t *testing.T) {
	tests := []struct {
		capital string
		price   string
	}{
		{"2000", "60000"},
		{"2000", "0.00001"},
		{"2000", "3"},
		{"100", "99999999"},
		{"0.01", "0.07"},
		{"1739.55", "61234.789"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("capital=%s price=%s", tt.capital, tt.price), func(t *testing.T) {
			l := newTestLedger(t, tt.capital)
			price := decimal.RequireFromString(tt.price)
			qty := l.CalculatePositionSize(price)

			assert.False(t, qty.IsNegative())
			cost := qty.Mul(price)
			assert.True(t, cost.LessThanOrEqual(l.AvailableCapital()),
				"cost %s exceeds available capital %s", cost, l.AvailableCapital())
			assert.True(t, qty.Exponent() >= -5, "quantity %s has more than 5 fractional digits", qty)
		})
	}
}

func TestCalculatePositionSize_ZeroPrice(t *testing.T) {
	l := newTestLedger(t, "2000")
	assert.True(t, l.CalculatePositionSize(decimal.Zero).IsZero())
	assert.True(t, l.CalculatePositionSize(decimal.NewFromInt(-5)).IsZero())
}

func TestOpenPosition_ReservesCapital(t *testing.T) {
	l := newTestLedger(t, "2000")
	require.True(t, l.CanOpenPosition())

	pos, err := l.OpenPosition(testPlan("BTCUSDT"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpening, pos.Status)
	assert.False(t, l.CanOpenPosition())
	// 2000 - 1800 cost - 5 transfer fees
	assert.True(t, l.AvailableCapital().Equal(decimal.NewFromInt(195)))
}

func TestOpenPosition_SecondPositionRejected(t *testing.T) {
	l := newTestLedger(t, "2000")
	_, err := l.OpenPosition(testPlan("BTCUSDT"))
	require.NoError(t, err)

	_, err = l.OpenPosition(testPlan("ETHUSDT"))
	assert.ErrorIs(t, err, ErrPositionOpen)
}

func TestOpenPosition_SinglePositionUnderConcurrency(t *testing.T) {
	l := newTestLedger(t, "2000")

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.OpenPosition(testPlan(fmt.Sprintf("SYM%dUSDT", i)))
		}(i)
	}
	wg.Wait()

	opened := 0
	for _, err := range errs {
		if err == nil {
			opened++
		}
	}
	assert.Equal(t, 1, opened, "exactly one racer may open a position")
}

func TestCompletePosition_RestoresInitialCapital(t *testing.T) {
	l := newTestLedger(t, "2000")
	_, err := l.OpenPosition(testPlan("BTCUSDT"))
	require.NoError(t, err)

	require.NoError(t, l.CompletePosition("BTCUSDT"))
	assert.True(t, l.AvailableCapital().Equal(decimal.NewFromInt(2000)))
	assert.True(t, l.CanOpenPosition())
	_, open := l.Position()
	assert.False(t, open)
}

func TestCompletePosition_UnknownSymbol(t *testing.T) {
	l := newTestLedger(t, "2000")
	assert.ErrorIs(t, l.CompletePosition("BTCUSDT"), ErrNoPosition)
}

func TestMarkStuck_KeepsCapitalReserved(t *testing.T) {
	l := newTestLedger(t, "2000")
	_, err := l.OpenPosition(testPlan("BTCUSDT"))
	require.NoError(t, err)

	l.MarkStuck("BTCUSDT")

	assert.False(t, l.CanOpenPosition(), "stuck positions must not release the gate")
	pos, open := l.Position()
	require.True(t, open)
	assert.Equal(t, model.StatusStuck, pos.Status)
	assert.True(t, l.AvailableCapital().Equal(decimal.NewFromInt(195)))
}

func TestSetStatus(t *testing.T) {
	l := newTestLedger(t, "2000")
	_, err := l.OpenPosition(testPlan("BTCUSDT"))
	require.NoError(t, err)

	require.NoError(t, l.SetStatus("BTCUSDT", model.StatusTransferring))
	pos, _ := l.Position()
	assert.Equal(t, model.StatusTransferring, pos.Status)

	assert.ErrorIs(t, l.SetStatus("ETHUSDT", model.StatusRepaying), ErrNoPosition)
}
