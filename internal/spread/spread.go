// Package spread implements the cross-venue best bid/ask cache: a dense
// [MAX_SYMBOLS][venue_count]Quote table owned exclusively by the single
// aggregator task. Update replaces one venue's slot and, if both venue
// slots are simultaneously populated, valid, and fresh, computes and
// returns a spread event. The calculator is purely in-memory and
// allocation-free; "lock-free" here means "single owner, no lock
// needed" per spec.md's concurrency model, not a lock-free algorithm in
// the CAS-loop sense.
package spread

import (
	"time"

	"github.com/kestrel-quant/marketedge/internal/fixedpoint"
	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/venuetag"
)

// DefaultMaxQuoteAge is the staleness threshold: a quote older than
// this is treated as missing for spread computation purposes.
const DefaultMaxQuoteAge = 5 * time.Second

// Calculator owns the dense quote cache for every registered symbol.
type Calculator struct {
	maxQuoteAge time.Duration
	quotes      [][venuetag.Count]slot
}

type slot struct {
	quote     marketdata.Quote
	populated bool
}

// New allocates the dense table sized to maxSymbols. maxQuoteAge of 0
// selects DefaultMaxQuoteAge.
func New(maxSymbols int, maxQuoteAge time.Duration) *Calculator {
	if maxQuoteAge <= 0 {
		maxQuoteAge = DefaultMaxQuoteAge
	}
	return &Calculator{
		maxQuoteAge: maxQuoteAge,
		quotes:      make([][venuetag.Count]slot, maxSymbols),
	}
}

// Update replaces the cached quote for (q.Symbol, q.Venue) and, if the
// counterpart venue also holds a fresh, valid quote, returns a spread
// event. ok is false when no event was produced (missing, invalid, or
// stale counterpart) — this is the normal, frequent case and is not an
// error.
func (c *Calculator) Update(q marketdata.Quote, now int64) (marketdata.SpreadEvent, bool) {
	if int(q.Symbol) >= len(c.quotes) {
		return marketdata.SpreadEvent{}, false
	}
	row := &c.quotes[q.Symbol]
	row[q.Venue] = slot{quote: q, populated: true}

	primary := row[venuetag.Primary]
	secondary := row[venuetag.Secondary]
	if !primary.populated || !secondary.populated {
		return marketdata.SpreadEvent{}, false
	}
	if !primary.quote.IsValid() || !secondary.quote.IsValid() {
		return marketdata.SpreadEvent{}, false
	}
	if c.isStale(primary.quote, now) || c.isStale(secondary.quote, now) {
		return marketdata.SpreadEvent{}, false
	}

	bps, ok := fixedpoint.RatioBps(primary.quote.AskPrice, secondary.quote.BidPrice)
	if !ok {
		return marketdata.SpreadEvent{}, false
	}

	ts := primary.quote.ReceivedAtNanos
	if secondary.quote.ReceivedAtNanos > ts {
		ts = secondary.quote.ReceivedAtNanos
	}

	direction := marketdata.DirectionNone
	switch {
	case bps > 0:
		direction = marketdata.DirectionBuyPrimarySellSecondary
	case bps < 0:
		direction = marketdata.DirectionBuySecondarySellPrimary
	}

	return marketdata.SpreadEvent{
		Symbol:         q.Symbol,
		Direction:      direction,
		SpreadBps:      bps,
		TimestampNanos: ts,
	}, true
}

func (c *Calculator) isStale(q marketdata.Quote, now int64) bool {
	age := now - q.ReceivedAtNanos
	return age > c.maxQuoteAge.Nanoseconds()
}

// Latest returns the most recently cached quote for (sym, venue) and
// whether a quote has ever been recorded there. Cold-path only.
func (c *Calculator) Latest(sym int, v venuetag.Venue) (marketdata.Quote, bool) {
	if sym < 0 || sym >= len(c.quotes) {
		return marketdata.Quote{}, false
	}
	s := c.quotes[sym][v]
	return s.quote, s.populated
}
