// Package primary parses the primary streaming venue's flat envelope:
// every frame is a single JSON object carrying a top-level type
// discriminator "e" and symbol field "s". Quote frames ("e":"bookTicker")
// carry string-encoded best bid/ask price, optional size fields ("B"/"A",
// defaulting to zero when the frame omits them), plus a "T" transaction
// time in milliseconds. Trade frames ("e":"trade") carry
// price "p", quantity "q", trade time "T" in milliseconds, and a
// maker-side boolean "m" (true when the resting order was the buyer,
// meaning the trade's aggressor/taker side was the seller).
// Subscription acknowledgements echo back `{"result":...,"id":N}`.
//
// Known primary-venue quirk: quote frames from this venue frequently
// carry a zero or absent "T" field (the venue's top-of-book stream does
// not stamp every tick). ParseQuote works around this by falling back
// to the caller-supplied receive timestamp whenever the venue's own
// timestamp is missing or non-positive, rather than propagating a
// zero/garbage time downstream.
package primary

import (
	"github.com/kestrel-quant/marketedge/internal/fixedpoint"
	"github.com/kestrel-quant/marketedge/internal/jsonscan"
	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/symbol"
	"github.com/kestrel-quant/marketedge/internal/venue"
	"github.com/kestrel-quant/marketedge/internal/venuetag"
)

// MaxSubscribeBatch is the maximum number of symbols this venue accepts
// per subscription frame.
const MaxSubscribeBatch = 50

// Detect classifies a raw frame by scanning for its "e" discriminator,
// falling back to the subscription-ack shape `{"result":...,"id":N}`.
// It never allocates and never inspects more of the frame than
// necessary.
func Detect(frame []byte) venue.FrameKind {
	if v, kind, ok := jsonscan.Find(frame, "e"); ok && kind == jsonscan.KindString {
		switch string(v) {
		case "bookTicker":
			return venue.FrameQuote
		case "trade":
			return venue.FrameTrade
		default:
			return venue.FrameControl
		}
	}
	if _, _, ok := jsonscan.Find(frame, "id"); ok {
		if _, _, has := jsonscan.Find(frame, "result"); has {
			return venue.FrameSubscriptionAck
		}
	}
	return venue.FrameUnknown
}

// ParseQuote extracts a Quote from an "e":"bookTicker" frame. reg
// resolves the "s" field to a dense Symbol; recvNanos is the local
// monotonic receive time, used whenever the frame's own "T" is absent
// or non-positive. ok is false for any malformed or non-numeric
// required field.
func ParseQuote(frame []byte, reg *symbol.Registry, recvNanos int64) (marketdata.Quote, bool) {
	var q marketdata.Quote
	q.Venue = venuetag.Primary

	symBytes, ok := jsonscan.StringField(frame, "s")
	if !ok {
		return q, false
	}
	sym := reg.FromBytes(symBytes)
	if sym == symbol.Unknown {
		return q, false
	}
	q.Symbol = sym

	bid, ok := parseF8Field(frame, "b")
	if !ok {
		return q, false
	}
	ask, ok := parseF8Field(frame, "a")
	if !ok {
		return q, false
	}
	// "B"/"A" (top-of-book size) are absent on some bookTicker frames;
	// price is the only required side of each leg.
	bidSize, _ := parseF8Field(frame, "B")
	askSize, _ := parseF8Field(frame, "A")
	q.BidPrice, q.BidSize, q.AskPrice, q.AskSize = bid, bidSize, ask, askSize

	ts := parseTimestampMillis(frame, "T")
	if ts > 0 {
		q.ReceivedAtNanos = ts
	} else {
		q.ReceivedAtNanos = recvNanos
	}
	return q, true
}

// ParseTrade extracts a Trade from an "e":"trade" frame.
func ParseTrade(frame []byte, reg *symbol.Registry, recvNanos int64) (marketdata.Trade, bool) {
	var tr marketdata.Trade
	tr.Venue = venuetag.Primary

	symBytes, ok := jsonscan.StringField(frame, "s")
	if !ok {
		return tr, false
	}
	sym := reg.FromBytes(symBytes)
	if sym == symbol.Unknown {
		return tr, false
	}
	tr.Symbol = sym

	price, ok := parseF8Field(frame, "p")
	if !ok {
		return tr, false
	}
	qty, ok := parseF8Field(frame, "q")
	if !ok {
		return tr, false
	}
	tr.Price, tr.Quantity = price, qty

	isBuyerMaker := false
	if v, kind, ok := jsonscan.Find(frame, "m"); ok && kind == jsonscan.KindBool {
		isBuyerMaker = string(v) == "true"
	} else {
		return tr, false
	}
	// The trade record documents the taker's side: if the buyer was
	// resting (maker), the aggressor was the seller, and vice versa.
	if isBuyerMaker {
		tr.Side = marketdata.SideSell
	} else {
		tr.Side = marketdata.SideBuy
	}
	tr.Taker = true

	ts := parseTimestampMillis(frame, "T")
	if ts <= 0 {
		ts = recvNanos
	}
	tr.TimestampNanos = ts
	return tr, true
}

func parseF8Field(frame []byte, key string) (fixedpoint.F8, bool) {
	v, kind, ok := jsonscan.Find(frame, key)
	if !ok || (kind != jsonscan.KindString && kind != jsonscan.KindNumber) {
		return 0, false
	}
	return fixedpoint.Parse(v)
}

// parseTimestampMillis reads a bare millisecond integer field and
// rescales it to nanoseconds. Returns 0 if the field is absent,
// non-numeric, or non-positive.
func parseTimestampMillis(frame []byte, key string) int64 {
	v, kind, ok := jsonscan.Find(frame, key)
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
