// Package orchestrator implements the startup sequence described in
// spec.md §4.J: load configuration, discover the liquid instrument
// universe, register it with the symbol registry exactly once, wire the
// stream clients through the router into the spread calculator and
// threshold tracker, and start the per-venue connect+subscribe+run
// tasks alongside the snapshot publish loop and its HTTP surface. There
// is no fallback list — discovery yielding zero instruments is a fatal
// startup condition, not a degraded-mode trigger.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kestrel-quant/marketedge/internal/config"
	"github.com/kestrel-quant/marketedge/internal/discovery"
	"github.com/kestrel-quant/marketedge/internal/fatal"
	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/metrics"
	"github.com/kestrel-quant/marketedge/internal/router"
	"github.com/kestrel-quant/marketedge/internal/snapshot"
	"github.com/kestrel-quant/marketedge/internal/spread"
	"github.com/kestrel-quant/marketedge/internal/stream"
	"github.com/kestrel-quant/marketedge/internal/symbol"
	"github.com/kestrel-quant/marketedge/internal/tracker"
	"github.com/kestrel-quant/marketedge/internal/venuetag"
)

// Orchestrator owns every top-level component for one process
// lifetime: the frozen registry, the router, the spread calculator, the
// threshold tracker, the two stream clients, and the snapshot provider
// plus its HTTP surface. Build with New, then call Run once.
type Orchestrator struct {
	cfg *config.Config
	log zerolog.Logger

	discoverer discoverer

	reg        *symbol.Registry
	rt         *router.Router
	calc       *spread.Calculator
	trk        *tracker.Tracker
	snapProv   *snapshot.Provider
	snapServer *snapshot.Server
	metrics    *metrics.Registry
	promReg    *prometheus.Registry

	primaryClient   *stream.Client
	secondaryClient *stream.Client

	msgCounts [venuetag.Count]atomic.Uint64
	ran       atomic.Bool
}

// discoverer is the subset of discovery.Client's surface the
// orchestrator needs; tests substitute a stub to avoid a live REST
// round trip.
type discoverer interface {
	DiscoverLiquidInstruments(ctx context.Context, minVolume24h float64) ([]string, error)
}

// New constructs an Orchestrator from a loaded configuration. It does
// not perform discovery or start any task — call Run for that. Each
// Orchestrator gets its own Prometheus registry rather than sharing the
// global default, so constructing more than one in a process (as the
// tests do) never panics on a duplicate metric registration.
func New(cfg *config.Config, log zerolog.Logger) *Orchestrator {
	promReg := prometheus.NewRegistry()
	return &Orchestrator{
		cfg:        cfg,
		log:        log,
		discoverer: discovery.New(cfg.PrimaryRESTURL, 0),
		metrics:    metrics.New(promReg),
		promReg:    promReg,
	}
}

// WithDiscoverer overrides the discovery collaborator. Exposed for
// tests; production callers should use New's default.
func (o *Orchestrator) WithDiscoverer(d discoverer) *Orchestrator {
	o.discoverer = d
	return o
}

// Run executes the full startup sequence and then blocks, running both
// stream clients, the snapshot publish loop, and the HTTP server until
// ctx is cancelled. It returns a non-nil error for any fatal startup
// condition (discovery failure, zero discovered instruments, exhausted
// initial connect budget) per spec.md §6's exit-code taxonomy; the
// caller is expected to treat a non-nil return as "exit non-zero."
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.ran.CompareAndSwap(false, true) {
		fatal.Invariant("orchestrator: Run called twice on the same instance — registry would be double-initialized")
	}

	names, err := o.discover(ctx)
	if err != nil {
		return err
	}

	o.reg = symbol.New(o.cfg.MaxSymbols)
	if err := o.reg.RegisterAll(names); err != nil {
		return fmt.Errorf("orchestrator: registry: %w", err)
	}
	o.log.Info().
		Str("liquid_instruments", humanize.Comma(int64(len(names)))).
		Str("min_volume_24h", humanize.CommafWithDigits(o.cfg.MinVolume24h, 0)).
		Msg("orchestrator: registry frozen")

	o.calc = spread.New(o.cfg.MaxSymbols, spread.DefaultMaxQuoteAge)
	epsilon := tracker.DefaultEpsilonBps()
	o.trk = tracker.New(o.cfg.MaxSymbols, int64(o.cfg.WindowDurationSecs)*int64(time.Second), tracker.DefaultCapacity, epsilon)
	o.rt = router.New(o.cfg.MaxSymbols)
	o.snapProv = snapshot.New(o.reg, o.trk, snapshot.DefaultStaleAfter)
	o.metrics.SetSymbolsActive(o.reg.Len())

	o.snapServer = snapshot.NewServer(snapshot.ServerConfig{Port: o.cfg.APIPort}, o.snapProv, o.promReg, o.log)

	o.wireHandlers()

	o.primaryClient = o.newPrimaryClient()
	o.secondaryClient = o.newSecondaryClient()

	symbolNames := make([]string, o.reg.Len())
	for i := range symbolNames {
		symbolNames[i] = o.reg.Name(symbol.Symbol(i))
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var wg sync.WaitGroup
	wg.Add(4)

	errs := make(chan error, 4)

	go func() {
		defer wg.Done()
		if err := o.runClientWithInitialBudget(runCtx, o.primaryClient, symbolNames, "bookTicker"); err != nil && runCtx.Err() == nil {
			errs <- fmt.Errorf("orchestrator: primary stream: %w", err)
			cancelRun()
		}
	}()
	go func() {
		defer wg.Done()
		if err := o.runClientWithInitialBudget(runCtx, o.secondaryClient, symbolNames, "tickers"); err != nil && runCtx.Err() == nil {
			errs <- fmt.Errorf("orchestrator: secondary stream: %w", err)
			cancelRun()
		}
	}()
	go func() {
		defer wg.Done()
		o.runSnapshotLoop(runCtx)
	}()
	go func() {
		defer wg.Done()
		if err := o.snapServer.Start(); err != nil && runCtx.Err() == nil {
			errs <- fmt.Errorf("orchestrator: snapshot server: %w", err)
			cancelRun()
		}
	}()

	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.snapServer.Shutdown(shutdownCtx)
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) discover(ctx context.Context) ([]string, error) {
	names, err := o.discoverer.DiscoverLiquidInstruments(ctx, o.cfg.MinVolume24h)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: discovery: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("orchestrator: discovery returned zero liquid instruments")
	}
	return names, nil
}

// runClientWithInitialBudget performs the first Connect/Subscribe
// outside Client.Run's own reconnect loop so a fatal configuration
// error (bad endpoint, exhausted initial backoff) can halt startup per
// spec.md §4.J/§6, while still handing off to Run's unbounded runtime
// reconnection once the first Streaming entry succeeds.
func (o *Orchestrator) runClientWithInitialBudget(ctx context.Context, c *stream.Client, symbolNames []string, channel string) error {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	delay := time.Second
	for {
		err := c.Connect(connectCtx)
		if err == nil {
			break
		}
		select {
		case <-connectCtx.Done():
			return fmt.Errorf("initial connect exhausted: %w", err)
		case <-time.After(delay):
		}
		delay *= 2
	}
	if err := c.Subscribe(connectCtx, symbolNames, channel); err != nil {
		return fmt.Errorf("initial subscribe failed: %w", err)
	}
	return c.Run(ctx)
}

func (o *Orchestrator) runSnapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(snapshot.DefaultPublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.publishSnapshot()
		}
	}
}

func (o *Orchestrator) publishSnapshot() {
	now := time.Now().UnixNano()
	primaryConnected := o.primaryClient.IsConnected()
	secondaryConnected := o.secondaryClient.IsConnected()
	o.metrics.SetVenueConnected(venuetag.Primary.String(), primaryConnected)
	o.metrics.SetVenueConnected(venuetag.Secondary.String(), secondaryConnected)
	o.metrics.RefreshParseErrorRatio()

	venues := []snapshot.VenueStatus{
		{
			Name:            venuetag.Primary.String(),
			Connected:       primaryConnected,
			MessagesPerSec:  o.messagesPerSecAndReset(venuetag.Primary),
			LastUpdateNanos: o.primaryClient.LastActivity().UnixNano(),
		},
		{
			Name:            venuetag.Secondary.String(),
			Connected:       secondaryConnected,
			MessagesPerSec:  o.messagesPerSecAndReset(venuetag.Secondary),
			LastUpdateNanos: o.secondaryClient.LastActivity().UnixNano(),
		},
	}
	o.snapProv.Publish(now, venues)
}

func (o *Orchestrator) messagesPerSecAndReset(v venuetag.Venue) float64 {
	count := o.msgCounts[v].Swap(0)
	return float64(count) / snapshot.DefaultPublishInterval.Seconds()
}

// wireHandlers registers, once, the quote and trade handler that every
// symbol shares: the quote handler feeds the spread calculator and, on
// a resulting event, the threshold tracker synchronously in the same
// call; the trade handler is purely informational bookkeeping (a
// per-venue message counter for the snapshot's messages/sec figure).
// Per spec.md §4.G, registration happens once here, before any stream
// client starts — Dispatch* is never mutated afterward.
func (o *Orchestrator) wireHandlers() {
	quoteHandler := func(q marketdata.Quote) {
		o.msgCounts[q.Venue].Add(1)
		now := time.Now().UnixNano()
		if ev, ok := o.calc.Update(q, now); ok {
			hitsBefore := o.trk.HitCount(ev.Symbol)
			o.trk.OnSpreadEvent(ev)
			o.metrics.RecordSpreadEvent()
			if o.trk.HitCount(ev.Symbol) != hitsBefore {
				o.metrics.RecordThresholdCrossing("crossing")
			}
		}
	}
	tradeHandler := func(t marketdata.Trade) {
		o.msgCounts[t.Venue].Add(1)
	}

	for i := 0; i < o.reg.Len(); i++ {
		sym := symbol.Symbol(i)
		o.rt.RegisterQuoteHandler(sym, quoteHandler)
		o.rt.RegisterTradeHandler(sym, tradeHandler)
	}
	o.rt.RegisterQuoteWildcard(func(marketdata.Quote) {})
	o.rt.RegisterTradeWildcard(func(marketdata.Trade) {})
}
