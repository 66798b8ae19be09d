package arbitrage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/niyobern/okx-binance/internal/feed"
	"github.com/niyobern/okx-binance/internal/ledger"
	"github.com/niyobern/okx-binance/internal/model"
)

// Executor runs the two trade legs for a plan and reports whether both
// filled.
type Executor interface {
	Execute(ctx context.Context, plan *model.TradePlan) error
}

// Settler drives a filled position through settlement to completion.
type Settler interface {
	Settle(ctx context.Context, pos model.Position) error
}

// Engine connects the price feed to the trading pipeline: on every tick it
// evaluates the symbol's spread, gates through the capital ledger and, when
// a plan passes, executes and settles it.
type Engine struct {
	logger    *slog.Logger
	table     *feed.Table
	evaluator *Evaluator
	ledger    *ledger.Ledger
	executor  Executor
	settler   Settler

	// mu makes evaluate-and-open a single critical section so concurrent
	// ticks for different symbols cannot both pass the gate.
	mu sync.Mutex
	wg sync.WaitGroup
}

// NewEngine creates a new trading engine.
func NewEngine(logger *slog.Logger, table *feed.Table, evaluator *Evaluator, lgr *ledger.Ledger, executor Executor, settler Settler) *Engine {
	return &Engine{
		logger:    logger.With("component", "engine"),
		table:     table,
		evaluator: evaluator,
		ledger:    lgr,
		executor:  executor,
		settler:   settler,
	}
}

// HandleTick evaluates a symbol after one of its prices changed. It never
// blocks the feed on trade execution: a passing plan is reserved in the
// ledger synchronously, then executed and settled in the background.
func (e *Engine) HandleTick(ctx context.Context, symbol string) {
	binancePrice, okxPrice, ok := e.table.Pair(symbol)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ledger.CanOpenPosition() {
		return
	}

	plan, rejection := e.evaluator.Evaluate(symbol, binancePrice, okxPrice)
	if plan == nil {
		if rejection != RejectMissingPrice {
			e.logger.Debug("opportunity rejected",
				"symbol", symbol,
				"reason", string(rejection),
				"binance_price", binancePrice,
				"okx_price", okxPrice,
			)
		}
		return
	}

	e.logger.Info("executing arbitrage",
		"symbol", symbol,
		"buy_venue", plan.BuyVenue,
		"sell_venue", plan.SellVenue,
		"buy_price", plan.BuyPrice,
		"sell_price", plan.SellPrice,
		"spread_percent", plan.SpreadPercent,
		"profit_percent", plan.ProfitPercent,
		"quantity", plan.Quantity,
	)

	pos, err := e.ledger.OpenPosition(plan)
	if err != nil {
		e.logger.Warn("position gate closed after evaluation", "symbol", symbol, "error", err)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runTrade(ctx, plan, *pos)
	}()
}

// runTrade executes both legs and, on a verified dual fill, settles the
// position. An execution failure leaves the capital reservation in place
// and the position stuck: the ledger cannot know which leg state the venues
// actually reached.
func (e *Engine) runTrade(ctx context.Context, plan *model.TradePlan, pos model.Position) {
	if err := e.executor.Execute(ctx, plan); err != nil {
		e.logger.Error("execution failed, position requires manual resolution",
			"symbol", plan.Symbol,
			"buy_venue", plan.BuyVenue,
			"sell_venue", plan.SellVenue,
			"quantity", plan.Quantity,
			"error", err,
		)
		e.ledger.MarkStuck(plan.Symbol)
		return
	}

	pos.Status = model.StatusFilled
	if err := e.ledger.SetStatus(plan.Symbol, model.StatusFilled); err != nil {
		e.logger.Error("failed to mark position filled", "symbol", plan.Symbol, "error", err)
		return
	}

	if err := e.settler.Settle(ctx, pos); err != nil {
		e.logger.Error("settlement failed", "symbol", plan.Symbol, "error", err)
	}
}

// Wait blocks until all in-flight trades have finished. Used on shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}
