package exchange

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstID(t *testing.T) {
	assert.Equal(t, "BTC-USDT", instID("BTCUSDT"))
	assert.Equal(t, "XRP-USDT", instID("XRPUSDT"))
	// Non-USDT symbols pass through untouched.
	assert.Equal(t, "BTCEUR", instID("BTCEUR"))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "BTCUSDT", canonical("BTC-USDT"))
	assert.Equal(t, "BTCUSDT", canonical(instID("BTCUSDT")))
}

func TestBinanceTickerParsing(t *testing.T) {
	raw := []byte(`{"e":"24hrTicker","s":"BTCUSDT","c":"60123.45","o":"59000.00"}`)
	var tick binanceTicker
	require.NoError(t, json.Unmarshal(raw, &tick))
	assert.Equal(t, "24hrTicker", tick.EventType)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.Equal(t, "60123.45", tick.LastPrice)
}

func TestOKXTickerParsing(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","last":"60123.45"}]}`)
	var msg okxTickerMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	require.Len(t, msg.Data, 1)
	assert.Equal(t, "BTC-USDT", msg.Data[0].InstID)
	assert.Equal(t, "60123.45", msg.Data[0].Last)
}

func TestOKXOrderResultNormalization(t *testing.T) {
	o := &OKXClient{}

	ok := []byte(`{"code":"0","data":[{"ordId":"312269865356374016","sCode":"0"}]}`)
	res, err := o.orderResult("BTCUSDT", ok)
	require.NoError(t, err)
	assert.True(t, res.Filled)
	assert.Equal(t, "312269865356374016", res.OrderID)

	rejected := []byte(`{"code":"1","data":[{"ordId":"","sCode":"51008","sMsg":"insufficient balance"}]}`)
	res, err = o.orderResult("BTCUSDT", rejected)
	require.NoError(t, err)
	assert.False(t, res.Filled)
	assert.Equal(t, "51008", res.Status)
}

func TestBinanceOrderResultNormalization(t *testing.T) {
	b := &BinanceClient{}

	res, err := b.orderResult("BTCUSDT", []byte(`{"orderId":28,"status":"FILLED"}`))
	require.NoError(t, err)
	assert.True(t, res.Filled)
	assert.Equal(t, "28", res.OrderID)

	res, err = b.orderResult("BTCUSDT", []byte(`{"orderId":29,"status":"EXPIRED"}`))
	require.NoError(t, err)
	assert.False(t, res.Filled)
	assert.Equal(t, "EXPIRED", res.Status)
}
