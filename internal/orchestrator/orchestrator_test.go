package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-quant/marketedge/internal/config"
	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/router"
	"github.com/kestrel-quant/marketedge/internal/spread"
	"github.com/kestrel-quant/marketedge/internal/symbol"
	"github.com/kestrel-quant/marketedge/internal/tracker"
	"github.com/kestrel-quant/marketedge/internal/venuetag"
)

type stubDiscoverer struct {
	names []string
	err   error
}

func (s stubDiscoverer) DiscoverLiquidInstruments(ctx context.Context, minVolume24h float64) ([]string, error) {
	return s.names, s.err
}

func testConfig() *config.Config {
	cfg := &config.Config{
		MinVolume24h:            1_000_000,
		OpportunityThresholdBps: 250_000,
		WindowDurationSecs:      120,
		MaxSymbols:              512,
		APIPort:                 0, // 0 lets the OS pick a free port; Run below never actually listens in these tests
		PrimaryWSURL:            "ws://example.invalid/primary",
		SecondaryWSURL:          "ws://example.invalid/secondary",
		PrimaryRESTURL:          "http://example.invalid/ticker",
	}
	return cfg
}

// TestRunAbortsOnDiscoveryFailure exercises S6: discovery returning zero
// instruments (or erroring) must abort startup before any registry
// mutation or stream connection attempt, never running on a stub set.
func TestRunAbortsOnDiscoveryFailure(t *testing.T) {
	orch := New(testConfig(), zerolog.Nop()).WithDiscoverer(stubDiscoverer{err: errors.New("boom")})
	err := orch.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, orch.reg)
}

func TestRunAbortsOnEmptyUniverse(t *testing.T) {
	orch := New(testConfig(), zerolog.Nop()).WithDiscoverer(stubDiscoverer{names: nil})
	err := orch.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero liquid instruments")
}

// TestWireHandlersFeedsSpreadIntoTracker builds the registry/router/
// calculator/tracker quartet the way Run does, without starting any
// network task, and confirms the quote handler registered by
// wireHandlers drives a spread event straight into the tracker — the
// hot path's single synchronous call chain from dispatch to tracker
// update.
func TestWireHandlersFeedsSpreadIntoTracker(t *testing.T) {
	cfg := testConfig()
	orch := New(cfg, zerolog.Nop())

	reg := symbol.New(cfg.MaxSymbols)
	require.NoError(t, reg.RegisterAll([]string{"BTCUSDT-PERP"}))
	orch.reg = reg
	orch.calc = spread.New(cfg.MaxSymbols, spread.DefaultMaxQuoteAge)
	orch.trk = tracker.New(cfg.MaxSymbols, int64(cfg.WindowDurationSecs)*1_000_000_000, tracker.DefaultCapacity, tracker.DefaultEpsilonBps())
	orch.rt = router.New(cfg.MaxSymbols)
	orch.wireHandlers()

	sym := orch.reg.FromBytes([]byte("BTCUSDT-PERP"))
	require.NotEqual(t, symbol.Unknown, sym)

	now := time.Now().UnixNano()
	primaryQuote := marketdata.Quote{
		Symbol:          sym,
		Venue:           venuetag.Primary,
		BidPrice:        6_000_000_000_000,
		AskPrice:        6_000_100_000_000,
		ReceivedAtNanos: now,
	}
	secondaryQuote := marketdata.Quote{
		Symbol:          sym,
		Venue:           venuetag.Secondary,
		BidPrice:        6_001_000_000_000,
		AskPrice:        6_001_100_000_000,
		ReceivedAtNanos: now + 1,
	}

	orch.rt.DispatchQuote(primaryQuote)
	orch.rt.DispatchQuote(secondaryQuote)

	current, ok := orch.trk.CurrentSpread(sym)
	require.True(t, ok, "expected the tracker to have received a spread sample")
	assert.NotEqual(t, int64(0), int64(current))
}
