package storage

import (
	"context"
	"sync"

	"github.com/doggo-app/locshare/internal/channel"
)

// DefaultSubscriptionBuffer is the per-subscription event buffer used when none is configured.
const DefaultSubscriptionBuffer = 256

// Hub fans child events out to subscriptions. Backends call Publish and
// Subscribe while holding their own write lock so that a new subscription's
// initial snapshot and the live events that follow it never overlap or leave gaps.
type Hub struct {
	mu         sync.Mutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	closed     bool
}

// NewHub creates a hub with the given per-subscription buffer size.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriptionBuffer
	}
	return &Hub{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a subscription, queues snapshot as EventAdded, and
// closes the subscription when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, snapshot []Child) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	h.nextID++
	sub := &Subscription{
		id:   h.nextID,
		hub:  h,
		ch:   channel.NewBuffered[Event](h.bufferSize + len(snapshot)),
		done: make(chan struct{}),
	}
	for _, c := range snapshot {
		sub.ch.TrySend(Event{Kind: EventAdded, Key: c.Key, Record: c.Record})
	}
	h.subs[sub.id] = sub

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Publish delivers e to every subscription without blocking. A subscription
// whose buffer is full is dropped with ErrSlowSubscriber.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		if !sub.ch.TrySend(e) {
			delete(h.subs, id)
			sub.finish(ErrSlowSubscriber)
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.finish(nil)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		sub.finish(nil)
	}
}

// Subscription is a live stream of child events.
type Subscription struct {
	id   uint64
	hub  *Hub
	ch   *channel.Buffered[Event]
	done chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

// NewSubscription creates a subscription that is not attached to a hub.
// Transports that receive events from elsewhere feed it with Deliver.
func NewSubscription(bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriptionBuffer
	}
	return &Subscription{
		ch:   channel.NewBuffered[Event](bufferSize),
		done: make(chan struct{}),
	}
}

// Events returns the event stream. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch.Receive()
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns why the subscription ended, or nil if it was closed normally or is still live.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Deliver queues e on a detached subscription. It returns false and ends the
// subscription with ErrSlowSubscriber if the buffer is full.
func (s *Subscription) Deliver(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return false
	default:
	}
	if !s.ch.TrySend(e) {
		s.finishLocked(ErrSlowSubscriber)
		return false
	}
	return true
}

// Fail ends a detached subscription with err.
func (s *Subscription) Fail(err error) {
	s.finish(err)
}

// Close deregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	if s.hub != nil {
		s.hub.remove(s)
		return
	}
	s.finish(nil)
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(err)
}

func (s *Subscription) finishLocked(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
		s.ch.Close()
	})
}
