// Package marketdata defines the cache-line-aligned value types that
// flow from the venue parsers through the router into the spread
// calculator: Quote, Trade, and SpreadEvent. All three are trivially
// copyable, carry no pointers, and have no destructors — the teacher's
// internal/providers/kraken package represents the equivalent book-top
// state as a struct with a mutex embedded in it; this package instead
// follows the "plain value, single owner" discipline spec.md requires,
// leaving synchronization entirely to the caller (the aggregator task).
package marketdata

import (
	"github.com/kestrel-quant/marketedge/internal/fixedpoint"
	"github.com/kestrel-quant/marketedge/internal/symbol"
	"github.com/kestrel-quant/marketedge/internal/venuetag"
)

// Side identifies the aggressor side of a trade.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// two is the F8 representation of 2, used by Mid's halving divide.
const two fixedpoint.F8 = fixedpoint.F8(2 * fixedpoint.Scale)

// Quote is the best top-of-book for one symbol on one venue: four F8
// fields (32 bytes), an int64 timestamp (8 bytes), a Symbol (4 bytes)
// and a Venue (1 byte) — comfortably inside one 64-byte cache line so a
// dense `[MAX_SYMBOLS][venue_count]Quote` table packs tightly.
type Quote struct {
	Symbol          symbol.Symbol
	Venue           venuetag.Venue
	_               [3]byte // explicit padding
	BidPrice        fixedpoint.F8
	BidSize         fixedpoint.F8
	AskPrice        fixedpoint.F8
	AskSize         fixedpoint.F8
	ReceivedAtNanos int64
}

// IsValid reports whether q represents a usable top-of-book: both sides
// positive and the book not crossed.
func (q Quote) IsValid() bool {
	return q.BidPrice > 0 && q.AskPrice > 0 && q.AskPrice >= q.BidPrice
}

// Mid returns the arithmetic mid of bid and ask. Callers must check
// IsValid first; on arithmetic failure (which cannot occur for any
// valid quote) it returns zero rather than an error, since this is a
// pure convenience helper, not part of the invariant-checked hot path.
func (q Quote) Mid() fixedpoint.F8 {
	sum, ok := fixedpoint.Add(q.BidPrice, q.AskPrice)
	if !ok {
		return 0
	}
	half, ok := fixedpoint.Div(sum, two)
	if !ok {
		return 0
	}
	return half
}

// SpreadAbsolute returns ask-bid. Callers must check IsValid first.
func (q Quote) SpreadAbsolute() fixedpoint.F8 {
	d, ok := fixedpoint.Sub(q.AskPrice, q.BidPrice)
	if !ok {
		return 0
	}
	return d
}

// Trade is one aggregated trade print.
type Trade struct {
	Symbol         symbol.Symbol
	Venue          venuetag.Venue
	Side           Side
	Taker          bool
	_              [2]byte
	Price          fixedpoint.F8
	Quantity       fixedpoint.F8
	TimestampNanos int64
}

// Direction marks which leg of a spread event is the buy side, for the
// dashboard's arbitrage-direction display.
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionBuySecondarySellPrimary
	DirectionBuyPrimarySellSecondary
)

// SpreadEvent is emitted by the spread calculator whenever both venues'
// quotes for a symbol are simultaneously valid and fresh. SpreadBps is
// (bid_secondary - ask_primary) / ask_primary in F8-scaled basis points.
type SpreadEvent struct {
	Symbol         symbol.Symbol
	Direction      Direction
	SpreadBps      fixedpoint.F8
	TimestampNanos int64
}
