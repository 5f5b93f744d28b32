// Package metrics exposes the aggregator's runtime counters over
// Prometheus, the way the teacher's interfaces/http package exposes
// pipeline and cache metrics. The only calls made per frame are
// RecordMessage and RecordParseError (plain counter increments, from the
// venue parser adapters) and RecordSpreadEvent/RecordThresholdCrossing
// (from the quote handler); derived values such as the parse-error ratio
// and the venue-connected gauges are refreshed from the orchestrator's
// snapshot publish loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// Registry holds every metric this process exports. Construct one with
// New and pass it to the orchestrator; a nil *Registry is never passed
// around, so callers always have a valid collector set.
type Registry struct {
	MessagesTotal    *prometheus.CounterVec
	ParseErrorsTotal *prometheus.CounterVec
	SpreadEventsTotal prometheus.Counter
	ThresholdCrossingsTotal *prometheus.CounterVec
	VenueConnected   *prometheus.GaugeVec
	SymbolsActive    prometheus.Gauge
	ParseErrorRatio  prometheus.Gauge
}

// New builds and registers the metric set. reg is the Prometheus
// registerer to attach to; production callers pass
// prometheus.DefaultRegisterer, tests pass a throwaway
// prometheus.NewRegistry() so repeated construction in the same process
// doesn't panic on duplicate registration.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketedge_messages_total",
				Help: "Total market-data frames parsed, by venue and kind.",
			},
			[]string{"venue", "kind"},
		),
		ParseErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketedge_parse_errors_total",
				Help: "Total frames rejected by a venue parser, by venue.",
			},
			[]string{"venue"},
		),
		SpreadEventsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "marketedge_spread_events_total",
				Help: "Total cross-venue spread samples accepted by the calculator.",
			},
		),
		ThresholdCrossingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketedge_threshold_crossings_total",
				Help: "Total opportunity-threshold crossings recorded by the tracker, by direction.",
			},
			[]string{"direction"},
		),
		VenueConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketedge_venue_connected",
				Help: "1 if the venue's stream client is in the Streaming state, 0 otherwise.",
			},
			[]string{"venue"},
		),
		SymbolsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketedge_symbols_active",
				Help: "Number of symbols in the frozen registry.",
			},
		),
		ParseErrorRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketedge_parse_error_ratio",
				Help: "Parse errors as a fraction of total frames seen, across all venues.",
			},
		),
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.ParseErrorsTotal,
		m.SpreadEventsTotal,
		m.ThresholdCrossingsTotal,
		m.VenueConnected,
		m.SymbolsActive,
		m.ParseErrorRatio,
	)
	return m
}

// RecordMessage increments the per-venue, per-kind message counter. This
// is called inline on every parsed frame, so it does nothing beyond the
// counter increment — the derived error ratio is refreshed separately,
// off the snapshot publish cadence, per spec.md §5's zero-allocation
// hot-path requirement.
func (m *Registry) RecordMessage(venue, kind string) {
	m.MessagesTotal.WithLabelValues(venue, kind).Inc()
}

// RecordParseError increments the per-venue reject counter. Also called
// inline on every rejected frame; see RecordMessage.
func (m *Registry) RecordParseError(venue string) {
	m.ParseErrorsTotal.WithLabelValues(venue).Inc()
}

// RecordSpreadEvent increments the accepted-spread-sample counter.
func (m *Registry) RecordSpreadEvent() {
	m.SpreadEventsTotal.Inc()
}

// RecordThresholdCrossing increments the crossing counter under the
// given direction label value. The orchestrator records every tracker
// hit with the single value "crossing".
func (m *Registry) RecordThresholdCrossing(direction string) {
	m.ThresholdCrossingsTotal.WithLabelValues(direction).Inc()
}

// SetVenueConnected reports a venue's current connection state.
func (m *Registry) SetVenueConnected(venue string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	m.VenueConnected.WithLabelValues(venue).Set(v)
}

// SetSymbolsActive reports the registry's symbol count once, after
// discovery freezes it.
func (m *Registry) SetSymbolsActive(n int) {
	m.SymbolsActive.Set(float64(n))
}

// RefreshParseErrorRatio sums the total/errors counters across every
// label value seen so far by reading each child metric back through
// client_model, the same pattern the teacher's updateCacheHitRatio uses
// to derive a gauge from counter vectors rather than tracking running
// sums separately. Unlike the teacher's per-cache-request call site,
// this one is off the hot path entirely: the orchestrator calls it once
// per snapshot publish tick (DefaultPublishInterval, 500ms by default),
// not once per parsed frame, so the per-call goroutine/channel walk
// below never runs on spec.md §5's allocation-free path.
func (m *Registry) RefreshParseErrorRatio() {
	var total, errored float64

	metricCh := make(chan prometheus.Metric, 64)
	go func() {
		m.MessagesTotal.Collect(metricCh)
		close(metricCh)
	}()
	for metric := range metricCh {
		var dto io_prometheus_client.Metric
		if err := metric.Write(&dto); err == nil {
			total += dto.GetCounter().GetValue()
		}
	}

	errCh := make(chan prometheus.Metric, 64)
	go func() {
		m.ParseErrorsTotal.Collect(errCh)
		close(errCh)
	}()
	for metric := range errCh {
		var dto io_prometheus_client.Metric
		if err := metric.Write(&dto); err == nil {
			errored += dto.GetCounter().GetValue()
		}
	}

	if total+errored > 0 {
		m.ParseErrorRatio.Set(errored / (total + errored))
	}
}
