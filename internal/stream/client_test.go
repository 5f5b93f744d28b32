package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-quant/marketedge/internal/venue"
)

type fakeParser struct {
	mu     sync.Mutex
	quotes int
	trades int
}

func (f *fakeParser) Detect(frame []byte) venue.FrameKind {
	switch {
	case strings.Contains(string(frame), `"kind":"quote"`):
		return venue.FrameQuote
	case strings.Contains(string(frame), `"kind":"trade"`):
		return venue.FrameTrade
	default:
		return venue.FrameUnknown
	}
}

func (f *fakeParser) OnQuote(frame []byte, recvNanos int64) {
	f.mu.Lock()
	f.quotes++
	f.mu.Unlock()
}

func (f *fakeParser) OnTrade(frame []byte, recvNanos int64) {
	f.mu.Lock()
	f.trades++
	f.mu.Unlock()
}

func (f *fakeParser) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotes, f.trades
}

// newEchoServer starts a websocket server that sends the frames given
// in sendQueue once a client connects, then echoes nothing further.
func newEchoServer(t *testing.T, upgrader websocket.Upgrader, sendQueue [][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, f := range sendQueue {
			_ = conn.WriteMessage(websocket.TextMessage, f)
		}
		// keep the connection open briefly so the client can read
		time.Sleep(200 * time.Millisecond)
	}))
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestClientConnectAndReceiveDispatchesToParser(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := newEchoServer(t, upgrader, [][]byte{
		[]byte(`{"kind":"quote"}`),
		[]byte(`{"kind":"trade"}`),
		[]byte(`{"kind":"trade"}`),
	})
	defer srv.Close()

	parser := &fakeParser{}
	cfg := Config{Name: "test-venue", URL: wsURL(srv.URL), ConnectTimeout: time.Second}
	c := New(cfg, parser, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := c.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, c.IsConnected() || c.State() == Handshaking)

	done := make(chan struct{})
	go func() {
		_ = c.receiveLoop(ctx)
		close(done)
	}()
	<-ctx.Done()
	<-done

	quotes, trades := parser.counts()
	assert.Equal(t, 1, quotes)
	assert.Equal(t, 2, trades)
}

func TestSubscribeRecordsForReplay(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var received [][]byte
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, data)
			mu.Unlock()
		}
	}))
	defer srv.Close()

	parser := &fakeParser{}
	cfg := Config{
		Name:              "test-venue",
		URL:               wsURL(srv.URL),
		ConnectTimeout:    time.Second,
		MaxSubscribeBatch: 2,
		SubscribeSpacing:  time.Millisecond,
		SubscribeFrames: func(symbols []string, channel string) [][]byte {
			return [][]byte{[]byte(strings.Join(symbols, ",") + "@" + channel)}
		},
	}
	c := New(cfg, parser, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx, []string{"A", "B", "C"}, "quote"))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 2) // batched into [A,B] and [C]

	c.mu.Lock()
	subs := c.subscriptions
	c.mu.Unlock()
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"A", "B", "C"}, subs[0].symbols)
}
