// Package tracker implements the per-symbol threshold tracker: a
// time-bounded rolling window of spread samples, a zero-crossing
// hysteresis state machine that counts qualifying threshold hits, and
// an exponentially-weighted mean-reversion half-life estimator. All
// state is pre-allocated per symbol at startup and mutated in place by
// the single aggregator task — there is no lock here either.
package tracker

import (
	"math"

	"github.com/kestrel-quant/marketedge/internal/fixedpoint"
	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/symbol"
)

const (
	// DefaultWindowNanos is the rolling window duration (120s).
	DefaultWindowNanos = int64(120) * int64(time_Second)
	// DefaultCapacity bounds the ring buffer; oldest entries are
	// dropped on overflow even before they age out of the window.
	DefaultCapacity = 4096
	// reversionTau is the EW-decay time constant for the half-life
	// estimator (60s), per spec.md §4.I.
	reversionTauNanos = float64(60) * float64(time_Second)
	// minSamplesForHalfLife is the minimum sample count before a
	// half-life estimate is considered ready.
	minSamplesForHalfLife = 16
	// nonStationaryDelta sets the lag-1 autocorrelation ceiling (1-delta)
	// at or above which the series is treated as non-stationary / not ready.
	nonStationaryDelta = 1e-4
	// maxHalfLifeSeconds / minHalfLifeSeconds bound the reported
	// half-life estimate.
	maxHalfLifeSeconds = 600.0
	minHalfLifeSeconds = 0.0
)

const time_Second = 1_000_000_000 // ns per second, named to avoid importing "time" for a single constant

// hysteresisState is the zero-crossing FSM's current side.
type hysteresisState uint8

const (
	stateNeutral hysteresisState = iota
	stateAbove
	stateBelow
)

type sample struct {
	timestampNanos int64
	spread         fixedpoint.F8
}

// symbolState holds everything tracked for one symbol. Pre-allocated
// for every index in [0, MaxSymbols) at construction time and never
// reallocated.
type symbolState struct {
	ring     []sample
	head     int // index of the oldest sample
	count    int // number of live samples in the ring
	hitCount uint64
	state    hysteresisState
	lastUpdateNanos int64

	// mean-reversion estimator
	ewMeanSq   float64 // EW estimate of E[x^2]
	ewAutoCov  float64 // EW estimate of E[x_t * x_{t-1}]
	prevSpread float64
	haveValue  bool
	samplesSeen int
}

// Tracker owns per-symbol rolling state for every registered symbol.
type Tracker struct {
	windowNanos int64
	capacity    int
	epsilon     fixedpoint.F8 // dead-band half-width, in F8 spread units
	states      []symbolState
}

// New allocates tracker state for maxSymbols symbols. windowNanos and
// capacity of 0 select the package defaults.
func New(maxSymbols int, windowNanos int64, capacity int, epsilon fixedpoint.F8) *Tracker {
	if windowNanos <= 0 {
		windowNanos = DefaultWindowNanos
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	states := make([]symbolState, maxSymbols)
	for i := range states {
		states[i].ring = make([]sample, capacity)
	}
	return &Tracker{
		windowNanos: windowNanos,
		capacity:    capacity,
		epsilon:     epsilon,
		states:      states,
	}
}

// OnSpreadEvent applies one spread event to its symbol's tracker state:
// appends to the rolling window (dropping aged-out and overflowed
// entries), advances the hysteresis FSM, and updates the half-life
// estimator. It is the only mutating entry point and is called
// synchronously by the router's quote handler chain.
func (t *Tracker) OnSpreadEvent(ev marketdata.SpreadEvent) {
	if int(ev.Symbol) >= len(t.states) {
		return
	}
	s := &t.states[ev.Symbol]
	t.appendSample(s, ev.TimestampNanos, ev.SpreadBps)
	t.advanceHysteresis(s, ev.SpreadBps)
	t.updateHalfLife(s, ev.TimestampNanos, ev.SpreadBps)
	s.lastUpdateNanos = ev.TimestampNanos
}

func (t *Tracker) appendSample(s *symbolState, ts int64, spread fixedpoint.F8) {
	tail := (s.head + s.count) % t.capacity
	s.ring[tail] = sample{timestampNanos: ts, spread: spread}
	if s.count < t.capacity {
		s.count++
	} else {
		// overflow: oldest entry (at head) is overwritten; advance head.
		s.head = (s.head + 1) % t.capacity
	}
	t.evictAged(s, ts)
}

// evictAged drops entries older than now-windowNanos from the front of
// the ring. The window is strictly time-ordered by insertion, so aged
// entries are always a prefix.
func (t *Tracker) evictAged(s *symbolState, now int64) {
	cutoff := now - t.windowNanos
	for s.count > 0 {
		oldest := s.ring[s.head]
		if oldest.timestampNanos >= cutoff {
			break
		}
		s.head = (s.head + 1) % t.capacity
		s.count--
	}
}

// advanceHysteresis updates the zero-crossing state machine and
// increments the hit counter exactly once per qualifying crossing.
func (t *Tracker) advanceHysteresis(s *symbolState, spread fixedpoint.F8) {
	var side hysteresisState
	switch {
	case spread > t.epsilon:
		side = stateAbove
	case spread < -t.epsilon:
		side = stateBelow
	default:
		side = stateNeutral
	}

	if side == stateNeutral {
		// Inside the dead band: hold the previous side, no transition.
		return
	}

	switch s.state {
	case stateAbove:
		if side == stateBelow {
			s.hitCount++
		}
	case stateBelow:
		if side == stateAbove {
			s.hitCount++
		}
	case stateNeutral:
		// First observed side after startup: establishes a baseline,
		// not a crossing.
	}
	s.state = side
}

// updateHalfLife feeds the exponentially-weighted second-moment and
// lag-1 autocovariance estimators that back the mean-reversion
// half-life calculation.
func (t *Tracker) updateHalfLife(s *symbolState, ts int64, spread fixedpoint.F8) {
	x := float64(spread) / float64(fixedpoint.Scale)

	if !s.haveValue {
		s.prevSpread = x
		s.haveValue = true
		s.ewMeanSq = x * x
		s.samplesSeen = 1
		return
	}

	dt := float64(ts - s.lastUpdateNanos)
	if dt <= 0 {
		dt = 1
	}
	alpha := 1 - math.Exp(-dt/reversionTauNanos)
	if alpha > 1 {
		alpha = 1
	}
	if alpha < 0 {
		alpha = 0
	}

	s.ewMeanSq = (1-alpha)*s.ewMeanSq + alpha*x*x
	s.ewAutoCov = (1-alpha)*s.ewAutoCov + alpha*x*s.prevSpread
	s.prevSpread = x
	s.samplesSeen++
}

// HalfLifeSeconds returns the current mean-reversion half-life estimate
// for sym, or ok=false when fewer than minSamplesForHalfLife samples
// have been seen, or the implied lag-1 autocorrelation indicates a
// non-stationary (non mean-reverting) series.
func (t *Tracker) HalfLifeSeconds(sym symbol.Symbol) (float64, bool) {
	if int(sym) >= len(t.states) {
		return 0, false
	}
	s := &t.states[sym]
	if s.samplesSeen < minSamplesForHalfLife {
		return 0, false
	}
	if s.ewMeanSq <= 0 {
		return 0, false
	}
	rho := s.ewAutoCov / s.ewMeanSq
	if rho >= 1-nonStationaryDelta {
		return 0, false
	}
	if rho <= 0 {
		// Immediate reversion: clamp to the lower bound rather than
		// taking log of a non-positive number.
		return minHalfLifeSeconds, true
	}
	hl := math.Log(2) / (-math.Log(rho))
	if hl < minHalfLifeSeconds {
		hl = minHalfLifeSeconds
	}
	if hl > maxHalfLifeSeconds {
		hl = maxHalfLifeSeconds
	}
	return hl, true
}

// CurrentSpread returns the most recently appended sample for sym.
func (t *Tracker) CurrentSpread(sym symbol.Symbol) (fixedpoint.F8, bool) {
	if int(sym) >= len(t.states) {
		return 0, false
	}
	s := &t.states[sym]
	if s.count == 0 {
		return 0, false
	}
	tail := (s.head + s.count - 1) % t.capacity
	return s.ring[tail].spread, true
}

// RangeOverWindow returns max(spread)-min(spread) over the live window.
// ok is false if the window is empty, or if every sample shares the
// same sign (no arbitrage interval crossed zero, per spec.md §4.I).
func (t *Tracker) RangeOverWindow(sym symbol.Symbol) (fixedpoint.F8, bool) {
	if int(sym) >= len(t.states) {
		return 0, false
	}
	s := &t.states[sym]
	if s.count == 0 {
		return 0, false
	}

	var maxV, minV fixedpoint.F8
	sawPositive, sawNegative := false, false
	for i := 0; i < s.count; i++ {
		idx := (s.head + i) % t.capacity
		v := s.ring[idx].spread
		if i == 0 {
			maxV, minV = v, v
		} else {
			if v > maxV {
				maxV = v
			}
			if v < minV {
				minV = v
			}
		}
		if v > 0 {
			sawPositive = true
		}
		if v < 0 {
			sawNegative = true
		}
	}
	if !(sawPositive && sawNegative) {
		return 0, false
	}
	d, ok := fixedpoint.Sub(maxV, minV)
	if !ok {
		return 0, false
	}
	return d, true
}

// HitCount returns the monotonic threshold-crossing hit counter.
func (t *Tracker) HitCount(sym symbol.Symbol) uint64 {
	if int(sym) >= len(t.states) {
		return 0
	}
	return t.states[sym].hitCount
}

// LastUpdateNanos returns the timestamp of the most recent spread event
// applied to sym, or 0 if none has ever been applied.
func (t *Tracker) LastUpdateNanos(sym symbol.Symbol) int64 {
	if int(sym) >= len(t.states) {
		return 0
	}
	return t.states[sym].lastUpdateNanos
}

// DefaultEpsilonBps computes the default dead-band half-width: 0.05% of
// price expressed in F8-scaled basis points, i.e. 5 bps.
func DefaultEpsilonBps() fixedpoint.F8 {
	v, _ := fixedpoint.Parse([]byte("5.00000000"))
	return v
}
