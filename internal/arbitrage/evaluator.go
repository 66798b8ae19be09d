package arbitrage

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/niyobern/okx-binance/internal/config"
	"github.com/niyobern/okx-binance/internal/model"
)

// Rejection explains why an evaluation produced no trade plan. Rejections
// are not errors: they are "no trade this tick" outcomes logged for the
// record.
type Rejection string

const (
	RejectNone           Rejection = ""
	RejectMissingPrice   Rejection = "missing or zero price"
	RejectUnknownAsset   Rejection = "asset not in network config"
	RejectZeroQuantity   Rejection = "position size is zero"
	RejectBelowNotional  Rejection = "trade amount below minimum"
	RejectAboveCeiling   Rejection = "spread above plausibility ceiling"
	RejectBelowThreshold Rejection = "profit below threshold after fees"
)

// Sizer supplies position sizing and the profit threshold; satisfied by
// ledger.Ledger.
type Sizer interface {
	CalculatePositionSize(buyPrice decimal.Decimal) decimal.Decimal
	MinProfitPercent() decimal.Decimal
}

// Evaluator computes spread, fee-adjusted profit and a directional trade
// plan from a symbol's two current prices. It performs no I/O and mutates
// nothing.
type Evaluator struct {
	logger           *slog.Logger
	networks         map[string]config.CoinNetwork
	sizer            Sizer
	takerFeePercent  map[model.Venue]decimal.Decimal
	minTradeNotional decimal.Decimal
	maxSpreadPercent decimal.Decimal
}

// NewEvaluator creates an evaluator from the trading configuration. Venue
// taker fees are read from the per-venue config.
func NewEvaluator(logger *slog.Logger, cfg config.Config, sizer Sizer) *Evaluator {
	fees := make(map[model.Venue]decimal.Decimal, len(cfg.Venues))
	for name, v := range cfg.Venues {
		fees[model.Venue(name)] = decimal.NewFromFloat(v.TakerFeePercent)
	}
	return &Evaluator{
		logger:           logger.With("component", "evaluator"),
		networks:         cfg.Networks,
		sizer:            sizer,
		takerFeePercent:  fees,
		minTradeNotional: decimal.NewFromFloat(cfg.Trading.MinTradeNotional),
		maxSpreadPercent: decimal.NewFromFloat(cfg.Trading.MaxSpreadPercent),
	}
}

var hundred = decimal.NewFromInt(100)

// Evaluate computes a trade plan for the symbol given the current Binance
// and OKX prices, or a rejection reason when no trade should happen this
// tick.
func (e *Evaluator) Evaluate(symbol string, binancePrice, okxPrice decimal.Decimal) (*model.TradePlan, Rejection) {
	if !binancePrice.IsPositive() || !okxPrice.IsPositive() {
		return nil, RejectMissingPrice
	}

	asset, ok := strings.CutSuffix(symbol, "USDT")
	if !ok {
		return nil, RejectUnknownAsset
	}
	network, known := e.networks[asset]
	if !known {
		return nil, RejectUnknownAsset
	}

	avg := binancePrice.Add(okxPrice).Div(decimal.NewFromInt(2))
	spreadPercent := binancePrice.Sub(okxPrice).Abs().Div(avg).Mul(hundred)

	// The cheaper venue is always the buy side; downstream fee math relies
	// on buy price <= sell price.
	buyVenue, sellVenue := model.VenueBinance, model.VenueOKX
	buyPrice, sellPrice := binancePrice, okxPrice
	if okxPrice.LessThan(binancePrice) {
		buyVenue, sellVenue = model.VenueOKX, model.VenueBinance
		buyPrice, sellPrice = okxPrice, binancePrice
	}

	quantity := e.sizer.CalculatePositionSize(buyPrice)
	if !quantity.IsPositive() {
		return nil, RejectZeroQuantity
	}
	totalCost := quantity.Mul(buyPrice)
	if totalCost.LessThan(e.minTradeNotional) {
		return nil, RejectBelowNotional
	}

	// Transfer fees: the asset's withdrawal fee out of the buy venue plus
	// the USDT fee for returning proceeds, both in quote units, expressed
	// against the actual notional rather than an assumed trade size.
	transferFees := decimal.NewFromFloat(network.WithdrawalFee).
		Add(decimal.NewFromFloat(e.networks["USDT"].WithdrawalFee))
	transferImpact := transferFees.Div(totalCost).Mul(hundred)
	tradingFees := e.takerFeePercent[buyVenue].Add(e.takerFeePercent[sellVenue])
	profitPercent := spreadPercent.Sub(tradingFees).Sub(transferImpact)

	if spreadPercent.GreaterThan(e.maxSpreadPercent) {
		// Implausibly large spreads are almost always a stale or bad quote.
		return nil, RejectAboveCeiling
	}
	if profitPercent.LessThanOrEqual(e.sizer.MinProfitPercent()) {
		return nil, RejectBelowThreshold
	}

	return &model.TradePlan{
		ID:            uuid.NewString(),
		Symbol:        symbol,
		BuyVenue:      buyVenue,
		SellVenue:     sellVenue,
		BuyPrice:      buyPrice,
		SellPrice:     sellPrice,
		SpreadPercent: spreadPercent,
		ProfitPercent: profitPercent,
		Quantity:      quantity,
		TotalCost:     totalCost,
		TransferFees:  transferFees,
	}, RejectNone
}
