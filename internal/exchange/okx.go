package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/niyobern/okx-binance/internal/config"
	"github.com/niyobern/okx-binance/internal/model"
)

// OKXClient implements the Client interface for OKX. OKX uses hyphenated
// instrument ids ("BTC-USDT"); translation to and from the canonical
// concatenated form happens entirely inside this client.
type OKXClient struct {
	logger         *slog.Logger
	cfg            config.VenueConfig
	symbols        []string
	reconnectDelay time.Duration
	http           *http.Client
}

// NewOKXClient creates a new OKXClient for the given canonical symbol set.
func NewOKXClient(logger *slog.Logger, cfg config.VenueConfig, symbols []string, reconnectDelay time.Duration) *OKXClient {
	return &OKXClient{
		logger:         logger.With("component", "okx"),
		cfg:            cfg,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		http:           &http.Client{Timeout: 15 * time.Second},
	}
}

func (o *OKXClient) Name() model.Venue {
	return model.VenueOKX
}

// instID converts a canonical symbol to OKX's hyphenated instrument id,
// e.g. "BTCUSDT" -> "BTC-USDT".
func instID(symbol string) string {
	if base, ok := strings.CutSuffix(symbol, "USDT"); ok {
		return base + "-USDT"
	}
	return symbol
}

// canonical strips the hyphen from an OKX instrument id.
func canonical(instID string) string {
	return strings.ReplaceAll(instID, "-", "")
}

type okxTickerMessage struct {
	Event string `json:"event"`
	Data  []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
	} `json:"data"`
}

// StreamTicks connects to the OKX WebSocket API, subscribes to the tickers
// channel for every configured symbol, and pushes normalized price ticks
// until the context is cancelled. Any stream failure triggers a reconnect
// after a fixed delay.
func (o *OKXClient) StreamTicks(ctx context.Context, ticks chan<- model.PriceTick) error {
	for {
		if err := o.streamOnce(ctx, ticks); err != nil {
			o.logger.Error("stream failed, reconnecting", "error", err, "delay", o.reconnectDelay)
		}
		select {
		case <-ctx.Done():
			o.logger.Info("context cancelled, shutting down stream")
			return nil
		case <-time.After(o.reconnectDelay):
		}
	}
}

func (o *OKXClient) streamOnce(ctx context.Context, ticks chan<- model.PriceTick) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, o.cfg.WSURL, nil)
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

	args := make([]map[string]string, 0, len(o.symbols))
	for _, s := range o.symbols {
		args = append(args, map[string]string{"channel": "tickers", "instId": instID(s)})
	}
	sub := map[string]any{"op": "subscribe", "args": args}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	o.logger.Info("connected and subscribed", "symbols", len(o.symbols))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg okxTickerMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			o.logger.Warn("unparseable message", "error", err)
			continue
		}
		if msg.Event == "subscribe" {
			o.logger.Info("subscription confirmed")
			continue
		}

		for _, item := range msg.Data {
			price, err := decimal.NewFromString(item.Last)
			if err != nil {
				o.logger.Warn("unparseable last price", "instId", item.InstID, "price", item.Last)
				continue
			}
			tick := model.PriceTick{
				Venue:  model.VenueOKX,
				Symbol: canonical(item.InstID),
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
}

// signedRequest performs an OKX signed REST call. The signature is
// base64(HMAC-SHA256(secret, timestamp + method + requestPath + body)) sent
// with the OK-ACCESS-* headers.
func (o *OKXClient) signedRequest(ctx context.Context, method, requestPath string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("okx: marshal request body: %w", err)
		}
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	mac := hmac.New(sha256.New, []byte(o.cfg.APISecret))
	mac.Write([]byte(timestamp + method + requestPath))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, o.cfg.BaseURL+requestPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("okx: build request: %w", err)
	}
	req.Header.Set("OK-ACCESS-KEY", o.cfg.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", signature)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", o.cfg.Passphrase)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("okx: %s %s: %w", method, requestPath, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("okx: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("okx: %s %s: status %d: %s", method, requestPath, resp.StatusCode, respBody)
	}
	return respBody, nil
}

type okxResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		OrdID string `json:"ordId"`
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
		WdID  string `json:"wdId"`
		Ccy   string `json:"ccy"`
		Amt   string `json:"amt"`
		TxID  string `json:"txId"`
		State string `json:"state"`
	} `json:"data"`
}

func (o *OKXClient) PlaceSpotMarketBuy(ctx context.Context, symbol string, qty decimal.Decimal) (model.OrderResult, error) {
	payload := map[string]string{
		"instId":  instID(symbol),
		"tdMode":  "cash",
		"side":    "buy",
		"ordType": "market",
		"sz":      qty.String(),
		"tgtCcy":  "base_ccy", // size is in base currency units
	}
	body, err := o.signedRequest(ctx, http.MethodPost, "/api/v5/trade/order", payload)
	if err != nil {
		return model.OrderResult{}, err
	}
	return o.orderResult(symbol, body)
}

func (o *OKXClient) PlaceMarginMarketShort(ctx context.Context, symbol string, qty decimal.Decimal) (model.OrderResult, error) {
	payload := map[string]string{
		"instId":  instID(symbol),
		"tdMode":  "cross",
		"side":    "sell",
		"ordType": "market",
		"sz":      qty.String(),
	}
	body, err := o.signedRequest(ctx, http.MethodPost, "/api/v5/trade/order", payload)
	if err != nil {
		return model.OrderResult{}, err
	}
	return o.orderResult(symbol, body)
}

// orderResult normalizes an OKX order response. An order is only considered
// filled when both the envelope code and the per-order sCode report success.
func (o *OKXClient) orderResult(symbol string, body []byte) (model.OrderResult, error) {
	var resp okxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.OrderResult{}, fmt.Errorf("okx: parse order response: %w", err)
	}
	result := model.OrderResult{Venue: model.VenueOKX, Symbol: symbol}
	if len(resp.Data) > 0 {
		result.OrderID = resp.Data[0].OrdID
		result.Status = resp.Data[0].SCode
		result.Filled = resp.Code == "0" && resp.Data[0].SCode == "0"
	}
	if !result.Filled && result.Status == "" {
		result.Status = resp.Code
	}
	return result, nil
}

func (o *OKXClient) RepayMarginLoan(ctx context.Context, asset string, qty decimal.Decimal) error {
	payload := map[string]string{
		"ccy":     asset,
		"amt":     qty.String(),
		"mgnMode": "cross",
	}
	body, err := o.signedRequest(ctx, http.MethodPost, "/api/v5/account/repay-debt", payload)
	if err != nil {
		return err
	}
	var resp okxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("okx: parse repay response: %w", err)
	}
	if resp.Code != "0" {
		return fmt.Errorf("%w: okx code %q (%s)", ErrRepayRejected, resp.Code, resp.Msg)
	}
	return nil
}

func (o *OKXClient) Withdraw(ctx context.Context, asset string, qty decimal.Decimal, address, network string) (string, error) {
	payload := map[string]string{
		"ccy":     asset,
		"amt":     qty.String(),
		"dest":    "4", // external withdrawal
		"toAddr":  address,
		"network": network,
	}
	body, err := o.signedRequest(ctx, http.MethodPost, "/api/v5/asset/withdrawal", payload)
	if err != nil {
		return "", err
	}
	var resp okxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("okx: parse withdraw response: %w", err)
	}
	if resp.Code != "0" || len(resp.Data) == 0 || resp.Data[0].WdID == "" {
		return "", fmt.Errorf("%w: okx code %q (%s)", ErrNoTransactionID, resp.Code, resp.Msg)
	}
	return resp.Data[0].WdID, nil
}

func (o *OKXClient) ConfirmedDeposits(ctx context.Context, asset string) ([]model.Deposit, error) {
	path := "/api/v5/asset/deposit-history?ccy=" + asset + "&state=2" // 2 = completed
	body, err := o.signedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp okxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("okx: parse deposit history: %w", err)
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("okx: deposit history: code %q (%s)", resp.Code, resp.Msg)
	}

	deposits := make([]model.Deposit, 0, len(resp.Data))
	for _, e := range resp.Data {
		amount, err := decimal.NewFromString(e.Amt)
		if err != nil {
			o.logger.Warn("unparseable deposit amount", "ccy", e.Ccy, "amt", e.Amt)
			continue
		}
		deposits = append(deposits, model.Deposit{Asset: e.Ccy, Amount: amount, TxID: e.TxID})
	}
	return deposits, nil
}
