package symbol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-quant/marketedge/internal/venuetag"
)

func TestRegisterAllAndLookup(t *testing.T) {
	r := New(512)
	err := r.RegisterAll([]string{"BTC-PERP", "ETH-PERP", "SOL-PERP"})
	require.NoError(t, err)
	assert.True(t, r.Frozen())
	assert.Equal(t, 3, r.Len())

	assert.Equal(t, Symbol(0), r.FromBytes([]byte("BTC-PERP")))
	assert.Equal(t, Symbol(1), r.FromBytes([]byte("ETH-PERP")))
	assert.Equal(t, Symbol(2), r.FromBytes([]byte("SOL-PERP")))
	assert.Equal(t, "BTC-PERP", r.Name(0))
}

func TestFromBytesUnknown(t *testing.T) {
	r := New(512)
	require.NoError(t, r.RegisterAll([]string{"BTC-PERP"}))
	assert.Equal(t, Unknown, r.FromBytes([]byte("DOGE-PERP")))
}

func TestFromBytesBeforeRegister(t *testing.T) {
	r := New(512)
	assert.Equal(t, Unknown, r.FromBytes([]byte("BTC-PERP")))
}

func TestRegisterAllRejectsDuplicate(t *testing.T) {
	r := New(512)
	err := r.RegisterAll([]string{"BTC-PERP", "BTC-PERP"})
	assert.Error(t, err)
	assert.False(t, r.Frozen())
}

func TestRegisterAllRejectsOversize(t *testing.T) {
	r := New(512)
	names := make([]string, r.MaxSymbols()+1)
	for i := range names {
		names[i] = fmt.Sprintf("SYM%d-PERP", i)
	}
	err := r.RegisterAll(names)
	assert.Error(t, err)
}

func TestRegisterAllRejectsSecondCall(t *testing.T) {
	r := New(512)
	require.NoError(t, r.RegisterAll([]string{"BTC-PERP"}))
	err := r.RegisterAll([]string{"ETH-PERP"})
	assert.Error(t, err)
	// First registration must remain intact.
	assert.Equal(t, Symbol(0), r.FromBytes([]byte("BTC-PERP")))
}

func TestDisplayNameFallsBackToCanonical(t *testing.T) {
	r := New(512)
	require.NoError(t, r.RegisterAll([]string{"BTC-PERP"}))
	assert.Equal(t, "BTC-PERP", r.DisplayName(0, venuetag.Primary))

	require.NoError(t, r.SetDisplayName(0, venuetag.Secondary, "XBTUSD"))
	assert.Equal(t, "XBTUSD", r.DisplayName(0, venuetag.Secondary))
	assert.Equal(t, "BTC-PERP", r.DisplayName(0, venuetag.Primary))
}

// Lookup determinism: repeated concurrent reads after freeze always agree.
func TestLookupDeterminismUnderConcurrentReads(t *testing.T) {
	r := New(512)
	names := []string{"BTC-PERP", "ETH-PERP", "SOL-PERP", "AVAX-PERP"}
	require.NoError(t, r.RegisterAll(names))

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			for i := 0; i < 1000; i++ {
				for idx, name := range names {
					if got := r.FromBytes([]byte(name)); got != Symbol(idx) {
						t.Errorf("lookup mismatch for %q: got %d want %d", name, got, idx)
					}
				}
			}
			done <- struct{}{}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
