package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolderGetSet(t *testing.T) {
	h := NewHolder(10)

	v, version := h.Get()
	assert.Equal(t, 10, v)
	assert.Equal(t, uint64(0), version)

	h.Set(20)
	v, version = h.Get()
	assert.Equal(t, 20, v)
	assert.Equal(t, uint64(1), version)
}

func TestHolderSubscribeReceivesLatest(t *testing.T) {
	h := NewHolder("a")
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Set("b")
	assert.Equal(t, "b", <-ch)
}

func TestHolderSlowSubscriberSeesLatestOnly(t *testing.T) {
	h := NewHolder(0)
	ch, cancel := h.Subscribe()
	defer cancel()

	// No reads between writes: last-write-wins, not a queue.
	h.Set(1)
	h.Set(2)
	h.Set(3)

	assert.Equal(t, 3, <-ch)

	select {
	case v := <-ch:
		t.Fatalf("unexpected buffered value %v", v)
	default:
	}
}

func TestHolderCancelStopsDelivery(t *testing.T) {
	h := NewHolder(0)
	ch, cancel := h.Subscribe()
	cancel()

	h.Set(1)

	select {
	case _, ok := <-ch:
		require.False(t, ok, "no value expected after cancel")
	default:
	}
}

func TestHolderMultipleSubscribers(t *testing.T) {
	h := NewHolder(0)
	ch1, cancel1 := h.Subscribe()
	defer cancel1()
	ch2, cancel2 := h.Subscribe()
	defer cancel2()

	h.Set(7)
	assert.Equal(t, 7, <-ch1)
	assert.Equal(t, 7, <-ch2)
}
