// Package router implements the dense O(1) fan-out described in the
// message-router component: one array per record kind, sized
// MAX_SYMBOLS, holding optional handler closures. Dispatch is an array
// index and nil-check, with a wildcard fallback per kind for symbols
// that have no specific handler registered (which should not happen
// once discovery has run, but keeps dispatch total). There is no map,
// no lock, and no dynamic dispatch beyond the one indirect call through
// the stored closure.
package router

import (
	"github.com/kestrel-quant/marketedge/internal/fatal"
	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/symbol"
)

// QuoteHandler processes one parsed quote. Must be non-blocking and
// non-allocating — it runs inline on the stream client's receive task.
type QuoteHandler func(marketdata.Quote)

// TradeHandler processes one parsed trade. Same constraints as
// QuoteHandler.
type TradeHandler func(marketdata.Trade)

// Router owns the two dense handler tables. Construct with New once at
// startup, register every symbol's handlers, then treat it as
// read-only: Dispatch* methods never mutate the tables.
type Router struct {
	quoteHandlers []QuoteHandler
	tradeHandlers []TradeHandler
	quoteWildcard QuoteHandler
	tradeWildcard TradeHandler
}

// New allocates the two handler tables up front, sized to maxSymbols.
// They are heap-allocated once (not stack values) so a large symbol
// universe does not blow a function's stack frame, and are referenced
// by the stable *Router pointer for the rest of the process lifetime.
func New(maxSymbols int) *Router {
	return &Router{
		quoteHandlers: make([]QuoteHandler, maxSymbols),
		tradeHandlers: make([]TradeHandler, maxSymbols),
	}
}

// RegisterQuoteHandler installs the quote handler for one symbol.
// Warm-path only; call during startup wiring before any stream client
// begins running. sym must be a real registered symbol — passing
// symbol.Unknown or any index outside the table is a wiring bug, not a
// condition dispatch should ever tolerate silently, so it aborts the
// process rather than quietly dropping the handler.
func (r *Router) RegisterQuoteHandler(sym symbol.Symbol, h QuoteHandler) {
	if int(sym) >= len(r.quoteHandlers) {
		fatal.Invariant("router: RegisterQuoteHandler called with out-of-range symbol %d (table size %d)", sym, len(r.quoteHandlers))
	}
	r.quoteHandlers[sym] = h
}

// RegisterTradeHandler installs the trade handler for one symbol. See
// RegisterQuoteHandler for the out-of-range contract.
func (r *Router) RegisterTradeHandler(sym symbol.Symbol, h TradeHandler) {
	if int(sym) >= len(r.tradeHandlers) {
		fatal.Invariant("router: RegisterTradeHandler called with out-of-range symbol %d (table size %d)", sym, len(r.tradeHandlers))
	}
	r.tradeHandlers[sym] = h
}

// RegisterQuoteWildcard installs the fallback handler invoked for any
// quote whose symbol has no specific handler (including Unknown).
func (r *Router) RegisterQuoteWildcard(h QuoteHandler) { r.quoteWildcard = h }

// RegisterTradeWildcard installs the fallback handler invoked for any
// trade whose symbol has no specific handler (including Unknown).
func (r *Router) RegisterTradeWildcard(h TradeHandler) { r.tradeWildcard = h }

// DispatchQuote looks up and invokes the handler for q.Symbol, falling
// back to the wildcard. Hot path: one bounds check, one nil check, one
// indirect call.
func (r *Router) DispatchQuote(q marketdata.Quote) {
	if int(q.Symbol) < len(r.quoteHandlers) {
		if h := r.quoteHandlers[q.Symbol]; h != nil {
			h(q)
			return
		}
	}
	if r.quoteWildcard != nil {
		r.quoteWildcard(q)
	}
}

// DispatchTrade looks up and invokes the handler for t.Symbol, falling
// back to the wildcard.
func (r *Router) DispatchTrade(t marketdata.Trade) {
	if int(t.Symbol) < len(r.tradeHandlers) {
		if h := r.tradeHandlers[t.Symbol]; h != nil {
			h(t)
			return
		}
	}
	if r.tradeWildcard != nil {
		r.tradeWildcard(t)
	}
}
