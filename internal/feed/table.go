package feed

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/niyobern/okx-binance/internal/model"
)

// Table holds the latest price per (venue, symbol). Each venue's feed task
// is the sole writer for its own entries; the evaluation path reads through
// the same lock for memory visibility.
type Table struct {
	mu     sync.RWMutex
	prices map[model.Venue]map[string]model.PriceTick
}

// NewTable creates an empty price table.
func NewTable() *Table {
	return &Table{
		prices: map[model.Venue]map[string]model.PriceTick{
			model.VenueBinance: {},
			model.VenueOKX:     {},
		},
	}
}

// Set records the latest price for a venue and symbol.
func (t *Table) Set(tick model.PriceTick) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byVenue, ok := t.prices[tick.Venue]
	if !ok {
		byVenue = make(map[string]model.PriceTick)
		t.prices[tick.Venue] = byVenue
	}
	byVenue[tick.Symbol] = tick
}

// Get returns the latest price for a venue and symbol.
func (t *Table) Get(venue model.Venue, symbol string) (model.PriceTick, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tick, ok := t.prices[venue][symbol]
	return tick, ok
}

// Pair returns the latest Binance and OKX prices for a symbol. The second
// return value is false until both venues have reported a non-zero price.
func (t *Table) Pair(symbol string) (binance, okx decimal.Decimal, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, bok := t.prices[model.VenueBinance][symbol]
	o, ook := t.prices[model.VenueOKX][symbol]
	if !bok || !ook || !b.Price.IsPositive() || !o.Price.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	return b.Price, o.Price, true
}
