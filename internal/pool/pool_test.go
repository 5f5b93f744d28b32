package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcquireConstructsWhenEmpty(t *testing.T) {
	calls := 0
	p := New(2, func() *[]byte {
		calls++
		b := make([]byte, 16)
		return &b
	})

	a := p.Acquire()
	b := p.Acquire()
	assert.NotNil(t, a)
	assert.NotNil(t, b)
	assert.Equal(t, 2, calls)
}

func TestReleaseThenAcquireReuses(t *testing.T) {
	calls := 0
	p := New(1, func() *[]byte {
		calls++
		b := make([]byte, 4)
		return &b
	})

	v := p.Acquire()
	assert.Equal(t, 1, calls)
	p.Release(v)
	assert.Equal(t, 1, p.Len())

	got := p.Acquire()
	assert.Same(t, v, got)
	assert.Equal(t, 1, calls, "reused item must not trigger another factory call")
}

func TestReleaseBeyondCapacityDrops(t *testing.T) {
	p := New(1, func() *int {
		v := 0
		return &v
	})
	a := p.Acquire()
	b := p.Acquire()
	p.Release(a)
	p.Release(b) // pool already holds one; this one is dropped, not blocked
	assert.Equal(t, 1, p.Len())
}
