// Package snapshot implements the cold-path read-only aggregate view
// described in spec.md §4.K: a per-symbol opportunity summary plus
// system counters, published at a fixed cadence via an atomically
// swapped immutable pointer so readers never block the aggregator.
package snapshot

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/kestrel-quant/marketedge/internal/fixedpoint"
	"github.com/kestrel-quant/marketedge/internal/symbol"
	"github.com/kestrel-quant/marketedge/internal/tracker"
)

// DefaultPublishInterval is the aggregator's snapshot-swap cadence per
// spec.md §5.
const DefaultPublishInterval = 500 * time.Millisecond

// DefaultStaleAfter is how long after its last tracker update a symbol
// stays in the published snapshot, independent of the spread
// calculator's own (shorter) per-quote staleness window. Publish leaves
// older symbols out entirely rather than flagging them, so the Stale
// field of a published SymbolView is always false.
const DefaultStaleAfter = 10 * time.Second

// SymbolView is one instrument's row in the published snapshot.
type SymbolView struct {
	Symbol       string  `json:"symbol"`
	CurrentSpread float64 `json:"current_spread_bps"`
	RangeBps     float64 `json:"range_bps"`
	HasRange     bool    `json:"has_range"`
	HitCount     uint64  `json:"hit_count"`
	HalfLifeSecs float64 `json:"half_life_secs"`
	HasHalfLife  bool    `json:"has_half_life"`
	Stale        bool    `json:"stale"`
}

// VenueCounters are the per-venue system counters in the snapshot.
type VenueCounters struct {
	Venue           string `json:"venue"`
	Connected       bool   `json:"connected"`
	MessagesPerSec  float64 `json:"messages_per_sec"`
	LastUpdateAgeMS int64  `json:"last_update_age_ms"`
}

// Snapshot is the immutable value published at each cadence tick.
// Readers hold a reference to one Snapshot value for the duration of a
// request; it is never mutated after construction.
type Snapshot struct {
	GeneratedAtNanos int64           `json:"generated_at_nanos"`
	Symbols          []SymbolView    `json:"symbols"`
	Venues           []VenueCounters `json:"venues"`
}

// VenueStatus is the live input the aggregator feeds into each publish
// cycle for one venue's counters.
type VenueStatus struct {
	Name           string
	Connected      bool
	MessagesPerSec float64
	LastUpdateNanos int64
}

// Provider holds the currently published Snapshot behind an atomic
// pointer. Publish swaps the pointer; Current reads it. Neither call
// blocks the other.
type Provider struct {
	current atomic.Pointer[Snapshot]
	reg     *symbol.Registry
	tr      *tracker.Tracker
	staleAfter time.Duration
}

// New constructs a Provider over the given registry and tracker. Both
// are read after warm-up only: the registry is frozen and the tracker
// is read via its own lock-free accessor methods, so Publish never
// contends with the aggregator's writes.
func New(reg *symbol.Registry, tr *tracker.Tracker, staleAfter time.Duration) *Provider {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	p := &Provider{reg: reg, tr: tr, staleAfter: staleAfter}
	p.current.Store(&Snapshot{})
	return p
}

// Current returns the most recently published Snapshot. Safe for
// concurrent use; never blocks.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// Publish builds a fresh Snapshot from the registry and tracker state
// and atomically swaps it in. nowNanos is the caller-supplied clock
// reading (the aggregator's own monotonic receive-time source, so this
// package never reads the wall clock itself).
func (p *Provider) Publish(nowNanos int64, venues []VenueStatus) {
	snap := &Snapshot{GeneratedAtNanos: nowNanos}

	for i := 0; i < p.reg.Len(); i++ {
		sym := symbol.Symbol(i)
		lastUpdate := p.tr.LastUpdateNanos(sym)
		if lastUpdate == 0 {
			continue // no activity in this process's lifetime: filtered out
		}
		age := nowNanos - lastUpdate
		if age > p.staleAfter.Nanoseconds() {
			continue // filters out symbols with no activity in the window
		}

		view := SymbolView{
			Symbol:   p.reg.Name(sym),
			HitCount: p.tr.HitCount(sym),
		}

		if cur, ok := p.tr.CurrentSpread(sym); ok {
			view.CurrentSpread = f8ToFloat(cur)
		}
		if rng, ok := p.tr.RangeOverWindow(sym); ok {
			view.RangeBps = f8ToFloat(rng)
			view.HasRange = true
		}
		if hl, ok := p.tr.HalfLifeSeconds(sym); ok {
			view.HalfLifeSecs = hl
			view.HasHalfLife = true
		}
		snap.Symbols = append(snap.Symbols, view)
	}

	sort.SliceStable(snap.Symbols, func(i, j int) bool {
		a, b := snap.Symbols[i], snap.Symbols[j]
		if a.HitCount != b.HitCount {
			return a.HitCount > b.HitCount
		}
		return a.RangeBps > b.RangeBps
	})

	for _, v := range venues {
		ageMS := int64(0)
		if v.LastUpdateNanos > 0 {
			ageMS = (nowNanos - v.LastUpdateNanos) / 1_000_000
		}
		snap.Venues = append(snap.Venues, VenueCounters{
			Venue:           v.Name,
			Connected:       v.Connected,
			MessagesPerSec:  v.MessagesPerSec,
			LastUpdateAgeMS: ageMS,
		})
	}

	p.current.Store(snap)
}

func f8ToFloat(v fixedpoint.F8) float64 {
	return float64(v) / float64(fixedpoint.Scale)
}
