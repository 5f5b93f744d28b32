package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTickers = `[
  {"symbol":"BTCUSDT-PERP","quoteVolume":"5000000.00"},
  {"symbol":"ETHUSDT-PERP","quoteVolume":"250.00"},
  {"symbol":"DOGEUSDT-PERP","quoteVolume":"9999999.99"},
  {"symbol":"BTCUSDT","quoteVolume":"9999999.99"},
  {"symbol":"solusdt-perp","quoteVolume":"2000000"}
]`

func TestParseTickerListFiltersByVolumeAndSuffix(t *testing.T) {
	names, err := ParseTickerList([]byte(sampleTickers), 1_000_000)
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"BTCUSDT-PERP", "DOGEUSDT-PERP", "SOLUSDT-PERP"}, names)
}

func TestParseTickerListRejectsNonArray(t *testing.T) {
	_, err := ParseTickerList([]byte(`{"symbol":"x"}`), 0)
	assert.Error(t, err)
}

func TestParseTickerListSkipsMalformedElements(t *testing.T) {
	names, err := ParseTickerList([]byte(`[{"symbol":"BTCUSDT-PERP"},{"quoteVolume":"10"}]`), 0)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDiscoverLiquidInstrumentsHitsConfiguredURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleTickers))
	}))
	defer srv.Close()

	c := New(srv.URL, 1)
	names, err := c.DiscoverLiquidInstruments(context.Background(), 1_000_000)
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"BTCUSDT-PERP", "DOGEUSDT-PERP", "SOLUSDT-PERP"}, names)
}

func TestDiscoverLiquidInstrumentsPropagatesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 1)
	_, err := c.DiscoverLiquidInstruments(context.Background(), 0)
	assert.Error(t, err)
}
