package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/media_downloader/internal/media"
)

func event(op, payload string) media.ProgressEvent {
	return media.ProgressEvent{OperationID: op, Kind: media.EventPercent, Payload: payload, Timestamp: time.Now()}
}

func drain(s *Subscription) []string {
	var out []string

	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}

			out = append(out, ev.Payload)
		default:
			return out
		}
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	ctx := context.Background()
	b := New(8, nil)

	a := b.Subscribe(ctx)
	c := b.Subscribe(ctx)
	require.Equal(t, 2, b.Len())

	assert.Equal(t, 2, b.Publish(ctx, event("op", "10%")))
	assert.Equal(t, 2, b.Publish(ctx, event("op", "20%")))

	assert.Equal(t, []string{"10%", "20%"}, drain(a))
	assert.Equal(t, []string{"10%", "20%"}, drain(c))
}

func TestBroadcaster_NoReplay(t *testing.T) {
	ctx := context.Background()
	b := New(8, nil)

	assert.Zero(t, b.Publish(ctx, event("op", "early")))

	s := b.Subscribe(ctx)
	b.Publish(ctx, event("op", "late"))

	assert.Equal(t, []string{"late"}, drain(s))
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	b := New(2, nil)

	slow := b.Subscribe(ctx)
	fast := b.Subscribe(ctx, WithBuffer(16))

	done := make(chan struct{})
	go func() {
		defer close(done)

		for i := 0; i < 10; i++ {
			b.Publish(ctx, event("op", "x"))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Len(t, drain(slow), 2)
	assert.Equal(t, int64(8), slow.Dropped())

	assert.Len(t, drain(fast), 10)
	assert.Zero(t, fast.Dropped())
}

func TestBroadcaster_WithOperation(t *testing.T) {
	ctx := context.Background()
	b := New(8, nil)

	all := b.Subscribe(ctx)
	one := b.Subscribe(ctx, WithOperation("op-1"))

	b.Publish(ctx, event("op-1", "a"))
	b.Publish(ctx, event("op-2", "b"))

	assert.Equal(t, []string{"a", "b"}, drain(all))
	assert.Equal(t, []string{"a"}, drain(one))
}

func TestSubscription_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	b := New(8, nil)

	s := b.Subscribe(ctx)
	s.Unsubscribe()
	s.Unsubscribe()

	assert.Zero(t, b.Len())

	_, ok := <-s.Events()
	assert.False(t, ok, "queue is closed")

	assert.Zero(t, b.Publish(ctx, event("op", "x")))
}

func TestBroadcaster_Close(t *testing.T) {
	ctx := context.Background()
	b := New(8, nil)

	s := b.Subscribe(ctx)
	b.Close()
	b.Close()

	_, ok := <-s.Events()
	assert.False(t, ok)
	assert.Zero(t, b.Len())

	late := b.Subscribe(ctx)
	_, ok = <-late.Events()
	assert.False(t, ok)

	late.Unsubscribe()
	s.Unsubscribe()
}

func TestBroadcaster_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	b := New(4, nil)

	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				b.Publish(ctx, event("op", "x"))
			}
		}()

		go func() {
			defer wg.Done()

			for j := 0; j < 20; j++ {
				s := b.Subscribe(ctx)
				drain(s)
				s.Unsubscribe()
			}
		}()
	}

	wg.Wait()
	assert.Zero(t, b.Len())
}
