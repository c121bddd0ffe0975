// ABOUTME: Tests for the generic fan-out broadcaster
// ABOUTME: Covers subscribe, publish, unsubscribe, context cancellation, slow subscribers, close

package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
		return ""
	}
}

func TestBroadcaster_MultipleSubscribersReceiveSameValue(t *testing.T) {
	b := New[string](nil)
	defer b.Close()

	ctx := t.Context()
	ch1, _ := b.Subscribe(ctx)
	ch2, _ := b.Subscribe(ctx)

	b.Publish("hello")

	assert.Equal(t, "hello", receive(t, ch1))
	assert.Equal(t, "hello", receive(t, ch2))
}

func TestBroadcaster_PublishWithoutSubscribers(t *testing.T) {
	b := New[string](nil)
	defer b.Close()

	// Must not panic or block
	b.Publish("nobody listening")
	assert.Equal(t, 0, b.Len())
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := New[string](nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context())
	b.Unsubscribe(subID)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, b.Len())

	// Unsubscribing twice is harmless
	b.Unsubscribe(subID)
}

func TestBroadcaster_ContextCancellationUnsubscribes(t *testing.T) {
	b := New[string](nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after context cancellation")
	}
	assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := New[int](nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context())

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_CloseClosesSubscribers(t *testing.T) {
	b := New[string](nil)

	ch, _ := b.Subscribe(t.Context())
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(t.Context())
	_, ok = <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")
}

func TestBroadcaster_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := New[int](nil)
	defer b.Close()

	ctx := t.Context()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch, id := b.Subscribe(ctx)
			b.Unsubscribe(id)
			for range ch {
			}
		}()
		go func(v int) {
			defer wg.Done()
			b.Publish(v)
		}(i)
	}
	wg.Wait()
}
