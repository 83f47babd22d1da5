package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/core"
	"github.com/doggo-app/locshare/pkg/streaming"
)

// ErrCancelled ends a subscription that the server dropped.
var ErrCancelled = errors.New("subscription cancelled by server")

// Config holds WebSocket backend configuration.
type Config struct {
	URL                string
	Secret             string
	SubscriptionBuffer int
}

// Backend is a client of a remote store served over WebSocket.
type Backend struct {
	conn   *connection
	cfg    Config
	nextID atomic.Uint64

	mu   sync.Mutex
	subs map[uint64]*storage.Subscription
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
		subs: make(map[uint64]*storage.Subscription),
	}
	b.conn.onEvent = b.handleEvent
	b.conn.onDrop = b.failSubscriptions
	return b
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close ends all subscriptions and disconnects from the WebSocket server.
func (b *Backend) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*storage.Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, id uint64, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, ID: id, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// request sends an envelope and waits for the server ack, mapping ack errors
// onto storage errors.
func (b *Backend) request(ctx context.Context, msgType string, payload any) (streaming.AckMessage, error) {
	return b.requestWithID(ctx, b.nextID.Add(1), msgType, payload)
}

func (b *Backend) requestWithID(ctx context.Context, id uint64, msgType string, payload any) (streaming.AckMessage, error) {
	if err := ctx.Err(); err != nil {
		return streaming.AckMessage{}, err
	}
	data, err := marshalEnvelope(msgType, id, payload)
	if err != nil {
		return streaming.AckMessage{}, err
	}

	ack, err := b.conn.sendAndWait(data, id, ackTimeout)
	if errors.Is(err, errConnClosed) {
		return ack, storage.ErrClosed
	}
	if err != nil {
		return ack, err
	}

	switch ack.Code {
	case "":
		return ack, nil
	case streaming.CodeNotFound:
		return ack, storage.ErrNotFound
	case streaming.CodeClosed:
		return ack, storage.ErrClosed
	default:
		return ack, fmt.Errorf("%s failed: %s", msgType, ack.Error)
	}
}

// Set overwrites the value at key on the server.
func (b *Backend) Set(ctx context.Context, key string, rec core.LocationRecord) error {
	_, err := b.request(ctx, streaming.TypeSet, streaming.SetPayload{Key: key, Record: rec})
	return err
}

// Delete removes the value at key on the server.
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.request(ctx, streaming.TypeDelete, streaming.KeyPayload{Key: key})
	return err
}

// Get returns the value at key.
func (b *Backend) Get(ctx context.Context, key string) (core.LocationRecord, error) {
	ack, err := b.request(ctx, streaming.TypeGet, streaming.KeyPayload{Key: key})
	if err != nil {
		return core.LocationRecord{}, err
	}
	var rec core.LocationRecord
	if err := json.Unmarshal(ack.Payload, &rec); err != nil {
		return core.LocationRecord{}, fmt.Errorf("decode get ack: %w", err)
	}
	return rec, nil
}

// Children returns every child sorted by key.
func (b *Backend) Children(ctx context.Context) ([]storage.Child, error) {
	ack, err := b.request(ctx, streaming.TypeChildren, nil)
	if err != nil {
		return nil, err
	}
	var payload streaming.ChildrenPayload
	if err := json.Unmarshal(ack.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode children ack: %w", err)
	}
	out := make([]storage.Child, len(payload.Children))
	for i, c := range payload.Children {
		out[i] = storage.Child{Key: c.Key, Record: c.Record}
	}
	return out, nil
}

// Subscribe opens a server-side subscription. The server replays existing
// children as child_added before streaming changes. A dropped connection ends
// the subscription with ErrDisconnected.
func (b *Backend) Subscribe(ctx context.Context) (*storage.Subscription, error) {
	id := b.nextID.Add(1)
	sub := storage.NewSubscription(b.cfg.SubscriptionBuffer)

	// registered before the request so events racing the ack are kept
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	if _, err := b.requestWithID(ctx, id, streaming.TypeSubscribe, nil); err != nil {
		b.forget(id)
		sub.Close()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
		if b.forget(id) {
			b.unsubscribe(id)
		}
	}()

	return sub, nil
}

// SubscriberCount returns the number of open remote subscriptions.
func (b *Backend) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// PendingWrites returns the number of frames queued for the write loop.
func (b *Backend) PendingWrites() int {
	return len(b.conn.sendCh)
}

func (b *Backend) unsubscribe(id uint64) {
	data, err := marshalEnvelope(streaming.TypeUnsubscribe, b.nextID.Add(1), streaming.SubscriptionPayload{ID: id})
	if err != nil {
		return
	}
	b.conn.send(data)
}

// forget removes a subscription and reports whether it was still registered.
func (b *Backend) forget(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[id]
	delete(b.subs, id)
	return ok
}

func (b *Backend) handleEvent(env streaming.Envelope) {
	if env.Type == streaming.TypeCancelled {
		b.handleCancelled(env)
		return
	}

	kind, ok := eventKind(env.Type)
	if !ok {
		b.conn.logger.Debug("Unknown message type", "type", env.Type)
		return
	}

	b.mu.Lock()
	sub, found := b.subs[env.ID]
	b.mu.Unlock()
	if !found {
		return
	}

	var child streaming.ChildPayload
	if err := json.Unmarshal(env.Payload, &child); err != nil {
		b.conn.logger.Warn("Malformed child event", "type", env.Type, "error", err)
		return
	}
	sub.Deliver(storage.Event{Kind: kind, Key: child.Key, Record: child.Record})
}

// handleCancelled ends a subscription the server gave up on. The server only
// drops subscriptions that fell behind, so the owner can resubscribe.
func (b *Backend) handleCancelled(env streaming.Envelope) {
	b.mu.Lock()
	sub, found := b.subs[env.ID]
	delete(b.subs, env.ID)
	b.mu.Unlock()
	if !found {
		return
	}

	var p streaming.CancelledPayload
	_ = json.Unmarshal(env.Payload, &p)
	b.conn.logger.Warn("Subscription cancelled by server", "subscription", env.ID, "error", p.Error)
	sub.Fail(fmt.Errorf("%w: %w", ErrCancelled, storage.ErrSlowSubscriber))
}

func (b *Backend) failSubscriptions() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*storage.Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Fail(ErrDisconnected)
	}
}

func eventKind(msgType string) (storage.EventKind, bool) {
	switch msgType {
	case streaming.TypeChildAdded:
		return storage.EventAdded, true
	case streaming.TypeChildChanged:
		return storage.EventChanged, true
	case streaming.TypeChildRemoved:
		return storage.EventRemoved, true
	case streaming.TypeChildMoved:
		return storage.EventMoved, true
	default:
		return 0, false
	}
}
