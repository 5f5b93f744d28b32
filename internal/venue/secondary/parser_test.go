package secondary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/symbol"
	"github.com/kestrel-quant/marketedge/internal/venue"
)

func newReg(t *testing.T) *symbol.Registry {
	t.Helper()
	r := symbol.New(512)
	require.NoError(t, r.RegisterAll([]string{"BTCUSDT", "ETHUSDT"}))
	return r
}

func TestDetect(t *testing.T) {
	assert.Equal(t, venue.FrameQuote, Detect([]byte(`{"topic":"tickers.BTCUSDT","data":{}}`)))
	assert.Equal(t, venue.FrameTrade, Detect([]byte(`{"topic":"publicTrade.BTCUSDT","data":[]}`)))
	assert.Equal(t, venue.FrameHeartbeat, Detect([]byte(`{"op":"ping"}`)))
	assert.Equal(t, venue.FrameSubscriptionAck, Detect([]byte(`{"event":"subscribe","success":true}`)))
	assert.Equal(t, venue.FrameControl, Detect([]byte(`{"topic":"orderbook.BTCUSDT","data":{}}`)))
	assert.Equal(t, venue.FrameUnknown, Detect([]byte(`{"foo":"bar"}`)))
}

func TestParseQuoteHappyPath(t *testing.T) {
	reg := newReg(t)
	frame := []byte(`{"topic":"tickers.BTCUSDT","ts":1690000000000,"data":{"b":"60000.10","bs":"1.5","a":"60000.20","as":"2.0"}}`)
	q, ok := ParseQuote(frame, reg, 1)
	require.True(t, ok)
	assert.Equal(t, symbol.Symbol(0), q.Symbol)
	assert.True(t, q.IsValid())
	assert.Equal(t, int64(1690000000000)*1_000_000, q.ReceivedAtNanos)
}

func TestParseQuoteUnknownSymbol(t *testing.T) {
	reg := newReg(t)
	frame := []byte(`{"topic":"tickers.DOGEUSDT","ts":1,"data":{"b":"1","bs":"1","a":"1","as":"1"}}`)
	_, ok := ParseQuote(frame, reg, 1)
	assert.False(t, ok)
}

// TestParseTradesArrayOfTwoMatchesLiteralScenario reproduces spec §8 S2.
func TestParseTradesArrayOfTwoMatchesLiteralScenario(t *testing.T) {
	reg := newReg(t)
	frame := []byte(`{"topic":"publicTrade.ETHUSDT","ts":1700000001000,"data":[{"s":"ETHUSDT","S":"Buy","p":"3000.5","v":"0.1","T":1700000000900},{"s":"ETHUSDT","S":"Sell","p":"3000.4","v":"0.05","T":1700000000950}]}`)
	trades, ok := ParseTrades(frame, reg, 99)
	require.True(t, ok)
	require.Len(t, trades, 2)

	f := trades[0]
	assert.Equal(t, symbol.Symbol(1), f.Symbol)
	assert.Equal(t, int64(300_050_000_000), int64(f.Price))
	assert.Equal(t, int64(10_000_000), int64(f.Quantity))
	assert.Equal(t, marketdata.SideBuy, f.Side)
	assert.Equal(t, int64(1_700_000_000_900_000_000), f.TimestampNanos)
	assert.True(t, f.Taker)

	assert.Equal(t, marketdata.SideSell, trades[1].Side)
	assert.Equal(t, int64(1_700_000_000_950_000_000), trades[1].TimestampNanos)
}

func TestParseTradesEmptyArray(t *testing.T) {
	reg := newReg(t)
	frame := []byte(`{"topic":"publicTrade.BTCUSDT","ts":1,"data":[]}`)
	trades, ok := ParseTrades(frame, reg, 1)
	require.True(t, ok)
	assert.Empty(t, trades)
}

func TestParseTradesElementFallsBackToFrameTimestamp(t *testing.T) {
	reg := newReg(t)
	frame := []byte(`{"topic":"publicTrade.BTCUSDT","ts":1690000000002,"data":[{"s":"BTCUSDT","S":"Buy","p":"1","v":"1"}]}`)
	trades, ok := ParseTrades(frame, reg, 1)
	require.True(t, ok)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(1690000000002)*1_000_000, trades[0].TimestampNanos)
}

func TestParseTradesSkipsMalformedElement(t *testing.T) {
	reg := newReg(t)
	frame := []byte(`{"topic":"publicTrade.BTCUSDT","ts":1,"data":[{"S":"Buy","p":"1","v":"1"},{"S":"Buy","v":"missing price"}]}`)
	trades, ok := ParseTrades(frame, reg, 1)
	require.True(t, ok)
	require.Len(t, trades, 1)
}
