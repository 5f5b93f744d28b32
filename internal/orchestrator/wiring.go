package orchestrator

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/kestrel-quant/marketedge/internal/marketdata"
	"github.com/kestrel-quant/marketedge/internal/metrics"
	"github.com/kestrel-quant/marketedge/internal/router"
	"github.com/kestrel-quant/marketedge/internal/stream"
	"github.com/kestrel-quant/marketedge/internal/symbol"
	"github.com/kestrel-quant/marketedge/internal/venue"
	"github.com/kestrel-quant/marketedge/internal/venue/primary"
	"github.com/kestrel-quant/marketedge/internal/venue/secondary"
)

// routedParser adapts one venue's Detect/ParseQuote/ParseTrade(s)
// functions, plus the frozen registry, into the stream.Parser interface
// Client.Run calls inline on its receive task. There is no queue
// between parsing and dispatch: OnQuote/OnTrade call straight into the
// router, which calls straight into the handlers wired in
// wireHandlers — the entire hot path is one synchronous call chain per
// spec.md §5.
type routedParser struct {
	reg *symbol.Registry
	rt  *router.Router
	m   *metrics.Registry
	// venueName labels every metric this parser records; it is the
	// lowercase form venuetag.Venue.String() returns, not a raw
	// venuetag.Venue, so the metrics package stays free of a
	// dependency on venuetag.
	venueName string

	detect     func([]byte) venue.FrameKind
	parseQuote func([]byte, *symbol.Registry, int64) (marketdata.Quote, bool)
	parseTrade func([]byte, *symbol.Registry, int64) (marketdata.Trade, bool)
	// parseTrades is set instead of parseTrade for the secondary venue,
	// whose trade topic carries a batch rather than one trade per frame.
	parseTrades func([]byte, *symbol.Registry, int64) ([]marketdata.Trade, bool)
}

func (p *routedParser) Detect(frame []byte) venue.FrameKind { return p.detect(frame) }

func (p *routedParser) OnQuote(frame []byte, recvNanos int64) {
	q, ok := p.parseQuote(frame, p.reg, recvNanos)
	if !ok {
		p.m.RecordParseError(p.venueName)
		return
	}
	p.m.RecordMessage(p.venueName, "quote")
	p.rt.DispatchQuote(q)
}

func (p *routedParser) OnTrade(frame []byte, recvNanos int64) {
	if p.parseTrades != nil {
		trades, ok := p.parseTrades(frame, p.reg, recvNanos)
		if !ok {
			p.m.RecordParseError(p.venueName)
			return
		}
		p.m.RecordMessage(p.venueName, "trade")
		for _, t := range trades {
			p.rt.DispatchTrade(t)
		}
		return
	}
	t, ok := p.parseTrade(frame, p.reg, recvNanos)
	if !ok {
		p.m.RecordParseError(p.venueName)
		return
	}
	p.m.RecordMessage(p.venueName, "trade")
	p.rt.DispatchTrade(t)
}

func newPrimaryParser(reg *symbol.Registry, rt *router.Router, m *metrics.Registry) stream.Parser {
	return &routedParser{
		reg:        reg,
		rt:         rt,
		m:          m,
		venueName:  "primary",
		detect:     primary.Detect,
		parseQuote: primary.ParseQuote,
		parseTrade: primary.ParseTrade,
	}
}

func newSecondaryParser(reg *symbol.Registry, rt *router.Router, m *metrics.Registry) stream.Parser {
	return &routedParser{
		reg:         reg,
		rt:          rt,
		m:           m,
		venueName:   "secondary",
		detect:      secondary.Detect,
		parseQuote:  secondary.ParseQuote,
		parseTrades: secondary.ParseTrades,
	}
}

// newPrimarySubscribeFrames / newSecondarySubscribeFrames return frame
// builders that hand out increasing identifiers for each frame's
// `id`/`req_id` field. Each builder holds its own counter, so the
// identifier is unique per client's outbound frames, not globally
// sequential across venues.
func newPrimarySubscribeFrames() func(symbols []string, channel string) [][]byte {
	var seq atomic.Uint64
	return func(symbols []string, channel string) [][]byte {
		id := seq.Add(1)
		var params strings.Builder
		params.WriteByte('[')
		for i, s := range symbols {
			if i > 0 {
				params.WriteByte(',')
			}
			params.WriteByte('"')
			params.WriteString(strings.ToLower(s))
			params.WriteByte('@')
			params.WriteString(channel)
			params.WriteByte('"')
		}
		params.WriteByte(']')
		frame := fmt.Sprintf(`{"method":"SUBSCRIBE","params":%s,"id":%d}`, params.String(), id)
		return [][]byte{[]byte(frame)}
	}
}

func newSecondarySubscribeFrames() func(symbols []string, channel string) [][]byte {
	var seq atomic.Uint64
	return func(symbols []string, channel string) [][]byte {
		id := seq.Add(1)
		var args strings.Builder
		args.WriteByte('[')
		for i, s := range symbols {
			if i > 0 {
				args.WriteByte(',')
			}
			args.WriteByte('"')
			args.WriteString(channel)
			args.WriteByte('.')
			args.WriteString(strings.ToUpper(s))
			args.WriteByte('"')
		}
		args.WriteByte(']')
		frame := fmt.Sprintf(`{"op":"subscribe","args":%s,"req_id":%q}`, args.String(), strconv.FormatUint(id, 10))
		return [][]byte{[]byte(frame)}
	}
}

// secondaryHeartbeatFrame is the explicit application-level ping the
// secondary venue requires every 15s (the primary venue relies on
// transport-level pings instead, so its Config.HeartbeatFrame stays nil
// per spec.md §4.F).
func secondaryHeartbeatFrame() []byte {
	return []byte(`{"op":"ping"}`)
}

func (o *Orchestrator) newPrimaryClient() *stream.Client {
	cfg := stream.Config{
		Name:              "primary",
		URL:               o.cfg.PrimaryWSURL,
		MaxSubscribeBatch: primary.MaxSubscribeBatch,
		SubscribeFrames:   newPrimarySubscribeFrames(),
		HeartbeatFrame:    nil,
	}
	return stream.New(cfg, newPrimaryParser(o.reg, o.rt, o.metrics), o.log.With().Str("component", "primary-stream").Logger())
}

func (o *Orchestrator) newSecondaryClient() *stream.Client {
	cfg := stream.Config{
		Name:              "secondary",
		URL:               o.cfg.SecondaryWSURL,
		MaxSubscribeBatch: secondary.MaxSubscribeBatch,
		SubscribeFrames:   newSecondarySubscribeFrames(),
		HeartbeatFrame:    secondaryHeartbeatFrame,
	}
	return stream.New(cfg, newSecondaryParser(o.reg, o.rt, o.metrics), o.log.With().Str("component", "secondary-stream").Logger())
}
