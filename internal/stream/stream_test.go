package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishOrdering(t *testing.T) {
	s := New[int]()
	ch, cancel := s.Subscribe(8)
	defer cancel()

	for i := 1; i <= 5; i++ {
		s.Publish(i)
	}

	for want := 1; want <= 5; want++ {
		got := <-ch
		assert.Equal(t, want, got)
	}
}

func TestDropNewestWhenBufferFull(t *testing.T) {
	s := New[int]()
	ch, cancel := s.Subscribe(2)
	defer cancel()

	s.Publish(1)
	s.Publish(2)
	s.Publish(3) // buffer full, dropped

	assert.Equal(t, 1, <-ch)
	assert.Equal(t, 2, <-ch)
	assert.Equal(t, uint64(1), s.Dropped())

	// The subscriber keeps receiving items published after the drop.
	s.Publish(4)
	assert.Equal(t, 4, <-ch)
}

func TestCloseSignalsSubscribers(t *testing.T) {
	s := New[string]()
	ch, _ := s.Subscribe(1)

	s.Publish("a")
	s.Close()

	v, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = <-ch
	assert.False(t, ok, "channel should be closed after stream close")

	// Subscribing after close yields a closed channel.
	ch2, cancel2 := s.Subscribe(1)
	defer cancel2()
	_, ok = <-ch2
	assert.False(t, ok)
}

func TestCancelRemovesSubscriber(t *testing.T) {
	s := New[int]()
	ch, cancel := s.Subscribe(1)
	cancel()

	_, ok := <-ch
	require.False(t, ok)

	// Publishing after cancel must not panic or block.
	s.Publish(42)
}
