package arbitrage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/niyobern/okx-binance/internal/feed"
	"github.com/niyobern/okx-binance/internal/ledger"
	"github.com/niyobern/okx-binance/internal/model"
)

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, plan *model.TradePlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

type MockSettler struct {
	mock.Mock
}

func (m *MockSettler) Settle(ctx context.Context, pos model.Position) error {
	args := m.Called(ctx, pos)
	return args.Error(0)
}

func newTestEngine(t *testing.T, executor Executor, settler Settler) (*Engine, *feed.Table, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	lgr := ledger.New(logger, decimal.NewFromInt(6000), decimal.RequireFromString("0.5"))
	evaluator := NewEvaluator(logger, testConfig(), lgr)
	table := feed.NewTable()
	return NewEngine(logger, table, evaluator, lgr, executor, settler), table, lgr
}

func tick(table *feed.Table, venue model.Venue, symbol string, price int64) {
	table.Set(model.PriceTick{
		Venue:  venue,
		Symbol: symbol,
		Price:  decimal.NewFromInt(price),
		At:     time.Now(),
	})
}

func TestHandleTick_NoTradeOnSmallSpread(t *testing.T) {
	mockExec := new(MockExecutor)
	mockSettler := new(MockSettler)
	engine, table, lgr := newTestEngine(t, mockExec, mockSettler)
	ctx := context.Background()

	tick(table, model.VenueBinance, "BTCUSDT", 60000)
	engine.HandleTick(ctx, "BTCUSDT") // only one venue has a price yet
	tick(table, model.VenueOKX, "BTCUSDT", 60300)
	engine.HandleTick(ctx, "BTCUSDT")
	engine.Wait()

	mockExec.AssertNotCalled(t, "Execute")
	assert.True(t, lgr.CanOpenPosition())
}

func TestHandleTick_ProfitableSpreadExecutesAndSettles(t *testing.T) {
	mockExec := new(MockExecutor)
	mockSettler := new(MockSettler)
	mockExec.On("Execute", mock.Anything, mock.Anything).Return(nil).Once()
	mockSettler.On("Settle", mock.Anything, mock.Anything).Return(nil).Once()

	engine, table, lgr := newTestEngine(t, mockExec, mockSettler)
	ctx := context.Background()

	tick(table, model.VenueBinance, "BTCUSDT", 60000)
	tick(table, model.VenueOKX, "BTCUSDT", 61200)
	engine.HandleTick(ctx, "BTCUSDT")
	engine.Wait()

	mockExec.AssertExpectations(t)
	mockSettler.AssertExpectations(t)

	plan := mockExec.Calls[0].Arguments.Get(1).(*model.TradePlan)
	assert.Equal(t, model.VenueBinance, plan.BuyVenue)
	assert.Equal(t, model.VenueOKX, plan.SellVenue)

	pos := mockSettler.Calls[0].Arguments.Get(1).(model.Position)
	assert.Equal(t, model.StatusFilled, pos.Status)

	// Settle was mocked, so the ledger stays locked until a real
	// settlement completes the position.
	assert.False(t, lgr.CanOpenPosition())
}

func TestHandleTick_ConcurrentTicksOpenAtMostOnePosition(t *testing.T) {
	mockExec := new(MockExecutor)
	mockSettler := new(MockSettler)
	block := make(chan struct{})
	mockExec.On("Execute", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		<-block
	}).Return(nil)
	mockSettler.On("Settle", mock.Anything, mock.Anything).Return(nil).Maybe()

	engine, table, _ := newTestEngine(t, mockExec, mockSettler)
	ctx := context.Background()

	// Two different symbols, each with a spread that would trade on its
	// own. Whichever tick wins the race opens the only position; the
	// other must be turned away at the gate.
	tick(table, model.VenueBinance, "BTCUSDT", 60000)
	tick(table, model.VenueOKX, "BTCUSDT", 61200)
	tick(table, model.VenueBinance, "ETHUSDT", 2000)
	tick(table, model.VenueOKX, "ETHUSDT", 2040)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		engine.HandleTick(ctx, "BTCUSDT")
	}()
	go func() {
		defer wg.Done()
		engine.HandleTick(ctx, "ETHUSDT")
	}()
	wg.Wait()

	close(block)
	engine.Wait()

	mockExec.AssertNumberOfCalls(t, "Execute", 1)
}

func TestHandleTick_ExecutionFailureLeavesLedgerLocked(t *testing.T) {
	mockExec := new(MockExecutor)
	mockSettler := new(MockSettler)
	mockExec.On("Execute", mock.Anything, mock.Anything).Return(errors.New("short leg not filled")).Once()

	engine, table, lgr := newTestEngine(t, mockExec, mockSettler)
	ctx := context.Background()

	tick(table, model.VenueBinance, "BTCUSDT", 60000)
	tick(table, model.VenueOKX, "BTCUSDT", 61200)
	engine.HandleTick(ctx, "BTCUSDT")
	engine.Wait()

	mockSettler.AssertNotCalled(t, "Settle")
	assert.False(t, lgr.CanOpenPosition(), "failed execution must not silently release capital")
	pos, open := lgr.Position()
	require.True(t, open)
	assert.Equal(t, model.StatusStuck, pos.Status)
}
