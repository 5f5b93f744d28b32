// Package stream implements the per-venue streaming client: connect,
// subscribe, receive-and-dispatch, heartbeat, and reconnect-with-backoff.
// It is transport-agnostic above gorilla/websocket, circuit-broken with
// sony/gobreaker on the connect path, and rate-limited on the
// subscribe path with golang.org/x/time/rate — the same three
// libraries the teacher's provider layer
// (internal/providers/kraken, infra/breakers, infra/limits) wires
// together, generalized here from one venue to a venue-parameterized
// client driven by a Parser.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/kestrel-quant/marketedge/internal/pool"
	"github.com/kestrel-quant/marketedge/internal/venue"
)

// Parser decouples the stream client from any one venue's wire format.
// Implementations wrap a venue's parser package plus the router
// dispatch calls.
type Parser interface {
	Detect(frame []byte) venue.FrameKind
	OnQuote(frame []byte, recvNanos int64)
	OnTrade(frame []byte, recvNanos int64)
}

// Config bounds a single client's behavior. Zero values select the
// spec's defaults.
type Config struct {
	Name               string // venue name, used only for logging/metrics labels
	URL                string
	MaxSubscribeBatch  int
	SubscribeSpacing   time.Duration // default 100ms
	IdleTimeout        time.Duration // default 30s; a heartbeat tick finding more silence than this is a missed beat, two in a row enter Stale
	HeartbeatInterval  time.Duration // default 15s
	ConnectTimeout     time.Duration // default 10s
	SendTimeout        time.Duration // default 5s
	BackoffInitial     time.Duration // default 1s
	BackoffCap         time.Duration // default 60s
	// SubscribeFrames builds one or more wire frames to subscribe to a
	// batch of symbols on the given channel.
	SubscribeFrames func(symbols []string, channel string) [][]byte
	// HeartbeatFrame returns a frame to send on each heartbeat tick, or
	// nil if this venue relies on transport-level pings instead (in
	// which case only the idle-silence watchdog applies).
	HeartbeatFrame func() []byte
}

func (c *Config) setDefaults() {
	if c.SubscribeSpacing <= 0 {
		c.SubscribeSpacing = 100 * time.Millisecond
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 60 * time.Second
	}
	if c.MaxSubscribeBatch <= 0 {
		c.MaxSubscribeBatch = 50
	}
}

// subscription records one outstanding (symbols, channel) batch request
// so it can be reissued verbatim after a reconnect.
type subscription struct {
	symbols []string
	channel string
}

// Client is one venue's streaming connection. Exactly one goroutine
// should call Run; Connect/Subscribe may be called before Run starts.
type Client struct {
	cfg    Config
	parser Parser
	log    zerolog.Logger

	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	bufPool *pool.Pool[[]byte]

	mu            sync.Mutex
	conn          *websocket.Conn
	state         atomic.Int32
	lastActivity  atomic.Int64 // unix nanos
	subscriptions []subscription
	missedBeats   atomic.Int32
}

// New constructs a client for one venue. parser receives every decoded
// quote/trade; log should already carry venue/name fields.
func New(cfg Config, parser Parser, log zerolog.Logger) *Client {
	cfg.setDefaults()
	c := &Client{
		cfg:     cfg,
		parser:  parser,
		log:     log.With().Str("venue", cfg.Name).Logger(),
		limiter: rate.NewLimiter(rate.Every(cfg.SubscribeSpacing), 1),
		bufPool: pool.New(64, func() *[]byte { b := make([]byte, 0, 4096); return &b }),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name + "-connect",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	c.state.Store(int32(Disconnected))
	return c
}

// State returns the client's current lifecycle state. Cold-path only.
func (c *Client) State() State { return State(c.state.Load()) }

// IsConnected reports whether the client is currently in Streaming.
func (c *Client) IsConnected() bool { return c.State() == Streaming }

// LastActivity returns the time of the most recent frame of any kind.
func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Connect dials the venue's streaming endpoint through the circuit
// breaker, disabling per-frame compression and applying low-latency TCP
// options. It blocks until connected, the breaker is open, or
// ConnectTimeout elapses.
func (c *Client) Connect(ctx context.Context) error {
	c.state.Store(int32(Connecting))

	dialer := &websocket.Dialer{
		NetDialContext: (&net.Dialer{
			Timeout:   c.cfg.ConnectTimeout,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		HandshakeTimeout: c.cfg.ConnectTimeout,
		EnableCompression: false,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	c.state.Store(int32(Handshaking))
	result, err := c.breaker.Execute(func() (any, error) {
		conn, _, err := dialer.DialContext(dialCtx, c.cfg.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("stream %s: connect: %w", c.cfg.Name, err)
		}
		if tcp, ok := conn.UnderlyingConn().(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
			_ = tcp.SetReadBuffer(1 << 20)
		}
		return conn, nil
	})
	if err != nil {
		c.state.Store(int32(Error))
		return err
	}

	conn := result.(*websocket.Conn)
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.touch()
	return nil
}

// Subscribe batches symbols into venue-sized groups, spacing frames
// apart by SubscribeSpacing to respect the venue's rate limit, and
// records the request for replay after a reconnect. The client does not
// filter out symbols it has already subscribed: calling Subscribe again
// for them sends the frames again and records the request again, and
// relies on the venue treating duplicate subscribes as no-ops.
func (c *Client) Subscribe(ctx context.Context, symbols []string, channel string) error {
	c.state.Store(int32(Subscribing))
	c.recordSubscription(symbols, channel)
	return c.sendSubscribe(ctx, symbols, channel)
}

// sendSubscribe writes the subscribe frames for symbols in
// MaxSubscribeBatch-sized groups, waiting on the rate limiter before
// each group. It records nothing for replay.
func (c *Client) sendSubscribe(ctx context.Context, symbols []string, channel string) error {
	for i := 0; i < len(symbols); i += c.cfg.MaxSubscribeBatch {
		end := i + c.cfg.MaxSubscribeBatch
		if end > len(symbols) {
			end = len(symbols)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		frames := c.cfg.SubscribeFrames(symbols[i:end], channel)
		for _, f := range frames {
			if err := c.send(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) recordSubscription(symbols []string, channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = append(c.subscriptions, subscription{symbols: append([]string(nil), symbols...), channel: channel})
}

// resubscribeAll replays every recorded subscription after a
// reconnect. No sequence-gap signal is produced — downstream treats
// this as a fresh start.
func (c *Client) resubscribeAll(ctx context.Context) error {
	c.mu.Lock()
	subs := append([]subscription(nil), c.subscriptions...)
	c.mu.Unlock()
	c.state.Store(int32(Subscribing))
	for _, s := range subs {
		if err := c.sendSubscribe(ctx, s.symbols, s.channel); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) send(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("stream: send on nil connection")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Run consumes frames until ctx is cancelled or an unrecoverable error
// occurs, reconnecting with backoff in between. It starts the
// heartbeat task and returns only on permanent shutdown.
func (c *Client) Run(ctx context.Context) error {
	bo := newBackoff(c.cfg.BackoffInitial, c.cfg.BackoffCap)

	for {
		if ctx.Err() != nil {
			c.state.Store(int32(Closed))
			return ctx.Err()
		}

		if err := c.Connect(ctx); err != nil {
			c.log.Error().Err(err).Msg("connect failed")
			if !c.sleepBackoff(ctx, bo) {
				return ctx.Err()
			}
			continue
		}

		if err := c.resubscribeAll(ctx); err != nil {
			c.log.Error().Err(err).Msg("resubscribe failed")
			c.closeConn()
			if !c.sleepBackoff(ctx, bo) {
				return ctx.Err()
			}
			continue
		}

		c.state.Store(int32(Streaming))
		bo.Reset()

		hbCtx, hbCancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.heartbeatLoop(hbCtx)
		}()

		err := c.receiveLoop(ctx)
		hbCancel()
		wg.Wait()
		c.closeConn()

		if ctx.Err() != nil {
			c.state.Store(int32(Closed))
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("stream ended, reconnecting")
		if !c.sleepBackoff(ctx, bo) {
			return ctx.Err()
		}
	}
}

func (c *Client) sleepBackoff(ctx context.Context, bo *backoff) bool {
	c.state.Store(int32(Reconnecting))
	select {
	case <-time.After(bo.Next()):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// receiveLoop reads frames, copies each into a pooled buffer (releasing
// it back to the pool once dispatch completes), detects its kind, and
// forwards quotes/trades to the parser inline — there is no queue
// between parsing and dispatch, per spec.md §5.
func (c *Client) receiveLoop(ctx context.Context) error {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return errors.New("stream: receive loop with nil connection")
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.touch()
		if msgType != websocket.TextMessage {
			continue
		}

		bufPtr := c.bufPool.Acquire()
		buf := (*bufPtr)[:0]
		buf = append(buf, data...)
		c.dispatch(buf)
		*bufPtr = buf
		c.bufPool.Release(bufPtr)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Client) dispatch(frame []byte) {
	recvNanos := time.Now().UnixNano()
	switch c.parser.Detect(frame) {
	case venue.FrameQuote:
		c.parser.OnQuote(frame, recvNanos)
	case venue.FrameTrade:
		c.parser.OnTrade(frame, recvNanos)
	case venue.FrameHeartbeat:
		c.touch()
	default:
		// subscription acks, control, unknown: nothing to dispatch.
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := time.Since(c.LastActivity())
			if idle > c.cfg.IdleTimeout {
				missed := c.missedBeats.Add(1)
				if missed >= 2 {
					c.state.Store(int32(Stale))
					c.closeConn() // forces receiveLoop to return, triggering reconnect
					return
				}
			} else {
				c.missedBeats.Store(0)
			}

			if c.cfg.HeartbeatFrame != nil {
				if err := c.send(c.cfg.HeartbeatFrame()); err != nil {
					c.log.Warn().Err(err).Msg("heartbeat send failed")
				}
			}
		}
	}
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
	c.missedBeats.Store(0)
}
