package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/symbol"
)

func TestDispatchQuoteToRegisteredHandler(t *testing.T) {
	r := New(8)
	var got marketdata.Quote
	called := 0
	r.RegisterQuoteHandler(3, func(q marketdata.Quote) {
		got = q
		called++
	})

	r.DispatchQuote(marketdata.Quote{Symbol: 3})
	assert.Equal(t, 1, called)
	assert.Equal(t, symbol.Symbol(3), got.Symbol)
}

func TestDispatchQuoteFallsBackToWildcard(t *testing.T) {
	r := New(8)
	wildcardCalled := 0
	r.RegisterQuoteWildcard(func(q marketdata.Quote) { wildcardCalled++ })
	r.RegisterQuoteHandler(1, func(q marketdata.Quote) { t.Fatal("wrong handler invoked") })

	r.DispatchQuote(marketdata.Quote{Symbol: 2})
	assert.Equal(t, 1, wildcardCalled)
}

func TestDispatchWithNoHandlerAndNoWildcardIsNoop(t *testing.T) {
	r := New(8)
	assert.NotPanics(t, func() {
		r.DispatchQuote(marketdata.Quote{Symbol: 0})
		r.DispatchTrade(marketdata.Trade{Symbol: 0})
	})
}

func TestDispatchTradeOutOfRangeSymbolUsesWildcard(t *testing.T) {
	r := New(4)
	wildcardCalled := 0
	r.RegisterTradeWildcard(func(tr marketdata.Trade) { wildcardCalled++ })
	r.DispatchTrade(marketdata.Trade{Symbol: symbol.Unknown})
	assert.Equal(t, 1, wildcardCalled)
}
