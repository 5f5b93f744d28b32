package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-quant/marketedge/internal/fixedpoint"
	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/symbol"
	"github.com/kestrel-quant/marketedge/internal/tracker"
)

func f8(s string) fixedpoint.F8 {
	v, ok := fixedpoint.Parse([]byte(s))
	if !ok {
		panic(s)
	}
	return v
}

func newRegAndTracker(t *testing.T) (*symbol.Registry, *tracker.Tracker) {
	t.Helper()
	reg := symbol.New(512)
	require.NoError(t, reg.RegisterAll([]string{"BTCUSDT", "ETHUSDT"}))
	tr := tracker.New(reg.MaxSymbols(), 0, 0, tracker.DefaultEpsilonBps())
	return reg, tr
}

func TestPublishFiltersInactiveSymbols(t *testing.T) {
	reg, tr := newRegAndTracker(t)
	p := New(reg, tr, time.Second)

	tr.OnSpreadEvent(marketdata.SpreadEvent{Symbol: 0, SpreadBps: f8("1.0"), TimestampNanos: 100})

	p.Publish(200, nil)
	snap := p.Current()
	require.Len(t, snap.Symbols, 1)
	assert.Equal(t, "BTCUSDT", snap.Symbols[0].Symbol)
}

func TestPublishOrdersByHitCountThenRange(t *testing.T) {
	reg, tr := newRegAndTracker(t)
	p := New(reg, tr, time.Hour)

	// symbol 0: one hit (both samples lie outside the default 5 bps dead band)
	tr.OnSpreadEvent(marketdata.SpreadEvent{Symbol: 0, SpreadBps: f8("10.0"), TimestampNanos: 1})
	tr.OnSpreadEvent(marketdata.SpreadEvent{Symbol: 0, SpreadBps: f8("-10.0"), TimestampNanos: 2})

	// symbol 1: zero hits, same sign only
	tr.OnSpreadEvent(marketdata.SpreadEvent{Symbol: 1, SpreadBps: f8("5.0"), TimestampNanos: 1})

	p.Publish(100, nil)
	snap := p.Current()
	require.Len(t, snap.Symbols, 2)
	assert.Equal(t, "BTCUSDT", snap.Symbols[0].Symbol) // higher hit count first
	assert.Equal(t, "ETHUSDT", snap.Symbols[1].Symbol)
}

func TestPublishMarksStaleSymbolsFilteredOut(t *testing.T) {
	reg, tr := newRegAndTracker(t)
	p := New(reg, tr, 5*time.Second)

	tr.OnSpreadEvent(marketdata.SpreadEvent{Symbol: 0, SpreadBps: f8("1.0"), TimestampNanos: 0})

	p.Publish(int64(10*time.Second), nil) // well past staleAfter
	snap := p.Current()
	assert.Empty(t, snap.Symbols)
}

func TestPublishIncludesVenueCounters(t *testing.T) {
	reg, tr := newRegAndTracker(t)
	p := New(reg, tr, time.Hour)

	p.Publish(1_000_000_000, []VenueStatus{
		{Name: "primary", Connected: true, MessagesPerSec: 42.5, LastUpdateNanos: 900_000_000},
	})
	snap := p.Current()
	require.Len(t, snap.Venues, 1)
	assert.Equal(t, "primary", snap.Venues[0].Venue)
	assert.True(t, snap.Venues[0].Connected)
	assert.Equal(t, int64(100), snap.Venues[0].LastUpdateAgeMS)
}

func TestCurrentReturnsEmptySnapshotBeforeFirstPublish(t *testing.T) {
	reg, tr := newRegAndTracker(t)
	p := New(reg, tr, time.Second)
	snap := p.Current()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Symbols)
}
