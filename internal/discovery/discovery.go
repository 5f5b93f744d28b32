// Package discovery implements the single warm-path REST call the
// orchestrator makes at startup: fetch the primary venue's public 24h
// ticker list and retain every perpetual-suffix instrument whose quote
// volume clears the configured floor. It never runs again after
// startup — there is no periodic re-discovery.
package discovery

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/kestrel-quant/marketedge/internal/jsonscan"
)

// PerpetualSuffix is the instrument-name suffix that marks a perpetual
// future, per spec.md §4.J's "perpetual-suffix instrument" filter.
const PerpetualSuffix = "-PERP"

// Client performs the universe-discovery REST call.
type Client struct {
	restURL string
	http    *retryablehttp.Client
}

// New constructs a discovery client against the given 24h ticker
// endpoint. maxRetries of 0 selects the retryablehttp default.
func New(restURL string, maxRetries int) *Client {
	hc := retryablehttp.NewClient()
	hc.Logger = log.New(io.Discard, "", 0)
	if maxRetries > 0 {
		hc.RetryMax = maxRetries
	}
	return &Client{restURL: restURL, http: hc}
}

// DiscoverLiquidInstruments fetches the ticker list and returns the
// canonical names of every perpetual-suffix instrument whose 24h quote
// volume is at least minVolume24h. An empty result together with a nil
// error is a valid (if unusual) outcome — the caller (the orchestrator)
// treats zero discovered instruments as a fatal startup condition, not
// this package.
func (c *Client) DiscoverLiquidInstruments(ctx context.Context, minVolume24h float64) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.restURL, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("discovery: read body: %w", err)
	}

	return ParseTickerList(body, minVolume24h)
}

// ParseTickerList extracts the liquid perpetual universe from a JSON
// array of `{"symbol":"...","quoteVolume":"..."}` objects, per spec.md
// §6. Exposed separately from DiscoverLiquidInstruments so it can be
// unit tested without a live HTTP round trip.
func ParseTickerList(body []byte, minVolume24h float64) ([]string, error) {
	elems, ok := topLevelArray(body)
	if !ok {
		return nil, fmt.Errorf("discovery: response is not a JSON array")
	}

	var names []string
	for _, e := range elems {
		symBytes, ok := jsonscan.StringField(e, "symbol")
		if !ok {
			continue
		}
		name := canonicalize(string(symBytes))
		if !strings.HasSuffix(name, PerpetualSuffix) {
			continue
		}

		volBytes, kind, ok := jsonscan.Find(e, "quoteVolume")
		if !ok || (kind != jsonscan.KindString && kind != jsonscan.KindNumber) {
			continue
		}
		vol, err := strconv.ParseFloat(string(volBytes), 64)
		if err != nil {
			continue
		}
		if vol < minVolume24h {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// canonicalize upper-cases the instrument name, which is already the
// wire convention for both venues' perpetual symbols.
func canonicalize(name string) string {
	return strings.ToUpper(name)
}

func topLevelArray(body []byte) ([][]byte, bool) {
	trimmed := trimLeadingSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	return jsonscan.ArrayElements(trimmed), true
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}
