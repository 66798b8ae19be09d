package exchange

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/niyobern/okx-binance/internal/config"
)

// NewClient creates a new exchange client based on the given name and
// configuration.
func NewClient(name string, logger *slog.Logger, cfg config.VenueConfig, symbols []string, reconnectDelay time.Duration) (Client, error) {
	switch name {
	case "binance":
		return NewBinanceClient(logger, cfg, symbols, reconnectDelay), nil
	case "okx":
		return NewOKXClient(logger, cfg, symbols, reconnectDelay), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
}
