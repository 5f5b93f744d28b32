package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := newBackoff(time.Second, 8*time.Second)
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	assert.Equal(t, 8*time.Second, b.Next())
	assert.Equal(t, 8*time.Second, b.Next()) // capped
}

func TestBackoffResetReturnsToInitial(t *testing.T) {
	b := newBackoff(time.Second, 8*time.Second)
	b.Next()
	b.Next()
	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestStateStringCoversAllValues(t *testing.T) {
	for s := Disconnected; s <= Reconnecting; s++ {
		assert.NotEqual(t, "unknown", s.String())
	}
}
