// Package broadcast fans progress events out to any number of subscribers
// without letting a slow subscriber hold up the publisher.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/telemetry"
)

// DefaultBuffer is the per-subscriber queue size.
const DefaultBuffer = 64

// Broadcaster delivers every published event to all current subscribers.
// There is no replay: a subscriber only sees events published after it
// subscribed.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	buffer    int
	telemetry *telemetry.Telemetry
}

// New creates a Broadcaster with the given default queue size.
func New(buffer int, tel *telemetry.Telemetry) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	if tel == nil {
		tel = &telemetry.Telemetry{}
	}

	return &Broadcaster{
		subs:      make(map[uint64]*Subscription),
		buffer:    buffer,
		telemetry: tel,
	}
}

// Option configures a subscription.
type Option func(*subscribeOptions)

type subscribeOptions struct {
	buffer      int
	operationID string
}

// WithOperation restricts a subscription to the events of one operation.
func WithOperation(id string) Option {
	return func(o *subscribeOptions) {
		o.operationID = id
	}
}

// WithBuffer overrides the queue size for one subscription.
func WithBuffer(n int) Option {
	return func(o *subscribeOptions) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// Subscription is a bounded queue of events for one observer.
type Subscription struct {
	id          uint64
	operationID string
	events      chan media.ProgressEvent
	dropped     atomic.Int64
	b           *Broadcaster
}

// Events returns the receive side of the queue. It is closed on Unsubscribe
// or when the broadcaster shuts down.
func (s *Subscription) Events() <-chan media.ProgressEvent {
	return s.events
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Unsubscribe removes the subscription and closes its queue. It is safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	s.b.remove(s.id)
}

func (s *Subscription) accepts(ev media.ProgressEvent) bool {
	return s.operationID == "" || s.operationID == ev.OperationID
}

// Subscribe registers a new subscriber. Subscribing to a closed broadcaster
// returns a subscription whose queue is already closed.
func (b *Broadcaster) Subscribe(ctx context.Context, opts ...Option) *Subscription {
	o := subscribeOptions{buffer: b.buffer}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Subscription{
		operationID: o.operationID,
		events:      make(chan media.ProgressEvent, o.buffer),
		b:           b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(s.events)
		return s
	}

	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s

	b.telemetry.AddSubscribers(ctx, 1)

	return s
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.subs[id]
	if !ok {
		return
	}

	delete(b.subs, id)
	close(s.events)

	b.telemetry.AddSubscribers(context.Background(), -1)
}

// Publish offers ev to every matching subscriber and returns how many
// accepted it. It never blocks: a full queue loses the event for that
// subscriber only.
func (b *Broadcaster) Publish(ctx context.Context, ev media.ProgressEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0

	for _, s := range b.subs {
		if !s.accepts(ev) {
			continue
		}

		select {
		case s.events <- ev:
			delivered++
		default:
			n := s.dropped.Add(1)
			b.telemetry.RecordEventDropped(ctx, string(ev.Kind))
			logctx.LoggerFromContext(ctx).DebugContext(ctx, "dropped progress event for slow subscriber",
				"subscriber", s.id, "kind", ev.Kind, "dropped_total", n)
		}
	}

	b.telemetry.RecordEventPublished(ctx, string(ev.Kind))

	return delivered
}

// Len returns the number of active subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Close closes every subscription. Later publishes reach nobody.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	b.telemetry.AddSubscribers(context.Background(), -int64(len(b.subs)))

	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.events)
	}
}
