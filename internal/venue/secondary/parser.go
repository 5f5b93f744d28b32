// Package secondary parses the secondary streaming venue's envelope:
// every frame wraps its payload as `{"topic":..., "data":..., "ts":...}`.
// "topic" is "tickers.SYMBOL" for a quote update or "publicTrade.SYMBOL"
// for a trade batch; "data" is a single object for tickers and an array
// of objects for trades. Ticker updates use the frame-level "ts" as the
// quote's receive time; trade elements each carry their own "T"
// millisecond trade time, with "ts" only a fallback for elements that
// omit it. Control frames use "op"/"event" instead of "topic".
package secondary

import (
	"github.com/kestrel-quant/marketedge/internal/fixedpoint"
	"github.com/kestrel-quant/marketedge/internal/jsonscan"
	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/symbol"
	"github.com/kestrel-quant/marketedge/internal/venue"
	"github.com/kestrel-quant/marketedge/internal/venuetag"
)

// MaxSubscribeBatch is the maximum number of symbols this venue accepts
// per subscription frame — tighter than the primary venue's, per its
// stricter per-frame rate limit.
const MaxSubscribeBatch = 10

const (
	topicTicker      = "tickers"
	topicPublicTrade = "publicTrade"
)

// Detect classifies a raw frame. Frames without a "topic" field are
// examined for "op"/"event" control markers; anything else is unknown.
func Detect(frame []byte) venue.FrameKind {
	if topic, kind, ok := jsonscan.Find(frame, "topic"); ok && kind == jsonscan.KindString {
		switch topicKind(topic) {
		case topicTicker:
			return venue.FrameQuote
		case topicPublicTrade:
			return venue.FrameTrade
		default:
			return venue.FrameControl
		}
	}
	if op, kind, ok := jsonscan.Find(frame, "op"); ok && kind == jsonscan.KindString {
		switch string(op) {
		case "ping", "pong":
			return venue.FrameHeartbeat
		default:
			return venue.FrameControl
		}
	}
	if event, kind, ok := jsonscan.Find(frame, "event"); ok && kind == jsonscan.KindString {
		switch string(event) {
		case "subscribe", "unsubscribe":
			return venue.FrameSubscriptionAck
		default:
			return venue.FrameControl
		}
	}
	return venue.FrameUnknown
}

// topicKind returns the prefix of a "<kind>.<symbol>" topic string
// without allocating (no strings.Split/Cut on a converted string —
// both would force a string allocation of the byte slice).
func topicKind(topic []byte) string {
	for i, c := range topic {
		if c == '.' {
			return string(topic[:i])
		}
	}
	return string(topic)
}

// topicSymbol returns the bytes after the first '.' in a topic string.
func topicSymbol(topic []byte) []byte {
	for i, c := range topic {
		if c == '.' {
			return topic[i+1:]
		}
	}
	return nil
}

// ParseQuote extracts a Quote from a "tickers.SYMBOL" frame. The
// payload is a single object under "data".
func ParseQuote(frame []byte, reg *symbol.Registry, recvNanos int64) (marketdata.Quote, bool) {
	var q marketdata.Quote
	q.Venue = venuetag.Secondary

	topic, kind, ok := jsonscan.Find(frame, "topic")
	if !ok || kind != jsonscan.KindString {
		return q, false
	}
	symBytes := topicSymbol(topic)
	if symBytes == nil {
		return q, false
	}
	sym := reg.FromBytes(symBytes)
	if sym == symbol.Unknown {
		return q, false
	}
	q.Symbol = sym

	data, kind, ok := jsonscan.Find(frame, "data")
	if !ok || kind != jsonscan.KindObject {
		return q, false
	}

	bid, ok := parseF8Field(data, "b")
	if !ok {
		return q, false
	}
	bidSize, ok := parseF8Field(data, "bs")
	if !ok {
		return q, false
	}
	ask, ok := parseF8Field(data, "a")
	if !ok {
		return q, false
	}
	askSize, ok := parseF8Field(data, "as")
	if !ok {
		return q, false
	}
	q.BidPrice, q.BidSize, q.AskPrice, q.AskSize = bid, bidSize, ask, askSize

	ts := parseTimestampMillis(frame, "ts")
	if ts <= 0 {
		ts = recvNanos
	}
	q.ReceivedAtNanos = ts
	return q, true
}

// ParseTrades extracts zero-to-many Trade records from a
// "publicTrade.SYMBOL" frame. The payload is an array of trade objects
// under "data", emitted in the array's own order. Each element carries
// its own millisecond trade time ("T"); the frame-level "ts" is only a
// fallback for elements missing it.
func ParseTrades(frame []byte, reg *symbol.Registry, recvNanos int64) ([]marketdata.Trade, bool) {
	topic, kind, ok := jsonscan.Find(frame, "topic")
	if !ok || kind != jsonscan.KindString {
		return nil, false
	}
	symBytes := topicSymbol(topic)
	if symBytes == nil {
		return nil, false
	}
	sym := reg.FromBytes(symBytes)
	if sym == symbol.Unknown {
		return nil, false
	}

	data, kind, ok := jsonscan.Find(frame, "data")
	if !ok || kind != jsonscan.KindArray {
		return nil, false
	}

	frameTs := parseTimestampMillis(frame, "ts")

	elems := jsonscan.ArrayElements(data)
	if len(elems) == 0 {
		return []marketdata.Trade{}, true
	}

	out := make([]marketdata.Trade, 0, len(elems))
	for _, e := range elems {
		tr, ok := parseTradeElement(e, sym, frameTs, recvNanos)
		if !ok {
			continue // malformed individual entry: skip, don't fail the whole batch
		}
		out = append(out, tr)
	}
	return out, true
}

func parseTradeElement(e []byte, sym symbol.Symbol, frameTs, recvNanos int64) (marketdata.Trade, bool) {
	var tr marketdata.Trade
	tr.Symbol = sym
	tr.Venue = venuetag.Secondary
	tr.Taker = true

	price, ok := parseF8Field(e, "p")
	if !ok {
		return tr, false
	}
	qty, ok := parseF8Field(e, "v")
	if !ok {
		return tr, false
	}
	tr.Price, tr.Quantity = price, qty

	sideBytes, kind, ok := jsonscan.Find(e, "S")
	if !ok || kind != jsonscan.KindString {
		return tr, false
	}
	switch string(sideBytes) {
	case "Buy":
		tr.Side = marketdata.SideBuy
	case "Sell":
		tr.Side = marketdata.SideSell
	default:
		return tr, false
	}

	ts := parseTimestampMillis(e, "T")
	if ts <= 0 {
		ts = frameTs
	}
	if ts <= 0 {
		ts = recvNanos
	}
	tr.TimestampNanos = ts

	return tr, true
}

func parseF8Field(buf []byte, key string) (fixedpoint.F8, bool) {
	v, kind, ok := jsonscan.Find(buf, key)
	if !ok || (kind != jsonscan.KindString && kind != jsonscan.KindNumber) {
		return 0, false
	}
	return fixedpoint.Parse(v)
}

func parseTimestampMillis(buf []byte, key string) int64 {
	v, kind, ok := jsonscan.Find(buf, key)
	if !ok || kind != jsonscan.KindNumber {
		return 0
	}
	ms, ok := parseUintASCII(v)
	if !ok {
		return 0
	}
	return int64(ms) * 1_000_000
}

func parseUintASCII(b []byte) (uint64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	return v, true
}
