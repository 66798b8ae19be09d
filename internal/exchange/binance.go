package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/niyobern/okx-binance/internal/config"
	"github.com/niyobern/okx-binance/internal/model"
)

// BinanceClient implements the Client interface for Binance: a multi-symbol
// ticker stream over WebSocket plus signed REST trading operations.
type BinanceClient struct {
	logger         *slog.Logger
	cfg            config.VenueConfig
	symbols        []string
	reconnectDelay time.Duration
	http           *http.Client
}

// NewBinanceClient creates a new BinanceClient for the given canonical
// symbol set.
func NewBinanceClient(logger *slog.Logger, cfg config.VenueConfig, symbols []string, reconnectDelay time.Duration) *BinanceClient {
	return &BinanceClient{
		logger:         logger.With("component", "binance"),
		cfg:            cfg,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		http:           &http.Client{Timeout: 15 * time.Second},
	}
}

func (b *BinanceClient) Name() model.Venue {
	return model.VenueBinance
}

type binanceTicker struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
}

// StreamTicks connects to the Binance WebSocket API, subscribes to the
// ticker channel for every configured symbol, and pushes normalized price
// ticks until the context is cancelled. Any stream failure triggers a
// reconnect after a fixed delay.
func (b *BinanceClient) StreamTicks(ctx context.Context, ticks chan<- model.PriceTick) error {
	for {
		if err := b.streamOnce(ctx, ticks); err != nil {
			b.logger.Error("stream failed, reconnecting", "error", err, "delay", b.reconnectDelay)
		}
		select {
		case <-ctx.Done():
			b.logger.Info("context cancelled, shutting down stream")
			return nil
		case <-time.After(b.reconnectDelay):
		}
	}
}

func (b *BinanceClient) streamOnce(ctx context.Context, ticks chan<- model.PriceTick) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	params := make([]string, 0, len(b.symbols))
	for _, s := range b.symbols {
		params = append(params, strings.ToLower(s)+"@ticker")
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	b.logger.Info("connected and subscribed", "symbols", len(b.symbols))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var t binanceTicker
		if err := json.Unmarshal(message, &t); err != nil || t.EventType != "24hrTicker" {
			continue
		}
		price, err := decimal.NewFromString(t.LastPrice)
		if err != nil {
			b.logger.Warn("unparseable last price", "symbol", t.Symbol, "price", t.LastPrice)
			continue
		}

		tick := model.PriceTick{
			Venue:  model.VenueBinance,
			Symbol: t.Symbol,
			Price:  price,
			At:     time.Now(),
		}
		select {
		case ticks <- tick:
		case <-ctx.Done():
			return nil
		}
	}
}

// signedRequest performs a Binance signed REST call: the request parameters
// plus a timestamp are HMAC-SHA256 signed with the API secret, hex encoded,
// and appended as the signature parameter.
func (b *BinanceClient) signedRequest(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(b.cfg.APISecret))
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, b.cfg.BaseURL+endpoint+"?"+query+"&signature="+signature, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: build request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", b.cfg.APIKey)

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: %s %s: status %d: %s", method, endpoint, resp.StatusCode, body)
	}
	return body, nil
}

type binanceOrderResponse struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}

func (b *BinanceClient) PlaceSpotMarketBuy(ctx context.Context, symbol string, qty decimal.Decimal) (model.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "BUY")
	params.Set("type", "MARKET")
	params.Set("quantity", qty.String())

	body, err := b.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return model.OrderResult{}, err
	}
	return b.orderResult(symbol, body)
}

func (b *BinanceClient) PlaceMarginMarketShort(ctx context.Context, symbol string, qty decimal.Decimal) (model.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "SELL")
	params.Set("type", "MARKET")
	params.Set("quantity", qty.String())
	params.Set("isIsolated", "FALSE")
	// MARGIN_BUY borrows the asset being sold.
	params.Set("sideEffectType", "MARGIN_BUY")

	body, err := b.signedRequest(ctx, http.MethodPost, "/sapi/v1/margin/order", params)
	if err != nil {
		return model.OrderResult{}, err
	}
	return b.orderResult(symbol, body)
}

func (b *BinanceClient) orderResult(symbol string, body []byte) (model.OrderResult, error) {
	var resp binanceOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.OrderResult{}, fmt.Errorf("binance: parse order response: %w", err)
	}
	return model.OrderResult{
		Venue:   model.VenueBinance,
		Symbol:  symbol,
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:  resp.Status,
		Filled:  resp.Status == "FILLED",
	}, nil
}

func (b *BinanceClient) RepayMarginLoan(ctx context.Context, asset string, qty decimal.Decimal) error {
	params := url.Values{}
	params.Set("asset", asset)
	params.Set("amount", qty.String())

	body, err := b.signedRequest(ctx, http.MethodPost, "/sapi/v1/margin/repay", params)
	if err != nil {
		return err
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("binance: parse repay response: %w", err)
	}
	if resp.Status != "SUCCESS" {
		return fmt.Errorf("%w: binance status %q", ErrRepayRejected, resp.Status)
	}
	return nil
}

func (b *BinanceClient) Withdraw(ctx context.Context, asset string, qty decimal.Decimal, address, network string) (string, error) {
	params := url.Values{}
	params.Set("coin", asset)
	params.Set("amount", qty.String())
	params.Set("address", address)
	params.Set("network", network)

	body, err := b.signedRequest(ctx, http.MethodPost, "/sapi/v1/capital/withdraw/apply", params)
	if err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("binance: parse withdraw response: %w", err)
	}
	if resp.ID == "" {
		return "", ErrNoTransactionID
	}
	return resp.ID, nil
}

func (b *BinanceClient) ConfirmedDeposits(ctx context.Context, asset string) ([]model.Deposit, error) {
	params := url.Values{}
	params.Set("coin", asset)
	params.Set("status", "1") // 1 = completed

	body, err := b.signedRequest(ctx, http.MethodGet, "/sapi/v1/capital/deposit/hisrec", params)
	if err != nil {
		return nil, err
	}
	var entries []struct {
		Coin   string `json:"coin"`
		Amount string `json:"amount"`
		TxID   string `json:"txId"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("binance: parse deposit history: %w", err)
	}

	deposits := make([]model.Deposit, 0, len(entries))
	for _, e := range entries {
		amount, err := decimal.NewFromString(e.Amount)
		if err != nil {
			b.logger.Warn("unparseable deposit amount", "coin", e.Coin, "amount", e.Amount)
			continue
		}
		deposits = append(deposits, model.Deposit{Asset: e.Coin, Amount: amount, TxID: e.TxID})
	}
	return deposits, nil
}
