// Package memory implements the storage.Backend interface with an in-process map.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/doggo-app/locshare/internal/config"
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/core"
)

// Backend keeps the current children in memory and exports a snapshot on Close.
type Backend struct {
	cfg      config.MemoryConfig
	hub      *storage.Hub
	children map[string]core.LocationRecord // keyed by child key

	closed         bool
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend.
func New(cfg config.MemoryConfig, subscriptionBuffer int) *Backend {
	return &Backend{
		cfg:      cfg,
		hub:      storage.NewHub(subscriptionBuffer),
		children: make(map[string]core.LocationRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close ends all subscriptions and, when an output directory is configured,
// exports the final snapshot.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.hub.Close()

	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON()
}

// Set overwrites the value at key, emitting Added or Changed.
func (b *Backend) Set(_ context.Context, key string, rec core.LocationRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return storage.ErrClosed
	}

	kind := storage.EventAdded
	if _, ok := b.children[key]; ok {
		kind = storage.EventChanged
	}
	b.children[key] = rec
	b.hub.Publish(storage.Event{Kind: kind, Key: key, Record: rec})
	return nil
}

// Delete removes the value at key, emitting Removed. Deleting an absent key is a no-op.
func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return storage.ErrClosed
	}

	rec, ok := b.children[key]
	if !ok {
		return nil
	}
	delete(b.children, key)
	b.hub.Publish(storage.Event{Kind: storage.EventRemoved, Key: key, Record: rec})
	return nil
}

// Get returns the value at key.
func (b *Backend) Get(_ context.Context, key string) (core.LocationRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.children[key]
	if !ok {
		return core.LocationRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

// Children returns every child sorted by key.
func (b *Backend) Children(_ context.Context) ([]storage.Child, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot(), nil
}

// Subscribe replays the current children and streams changes.
func (b *Backend) Subscribe(ctx context.Context) (*storage.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, storage.ErrClosed
	}
	return b.hub.Subscribe(ctx, b.snapshot())
}

// SubscriberCount returns the number of live subscriptions.
func (b *Backend) SubscriberCount() int {
	return b.hub.Len()
}

// GetExportedFilePath returns the path of the last snapshot written by Close.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// snapshot must be called with b.mu held.
func (b *Backend) snapshot() []storage.Child {
	out := make([]storage.Child, 0, len(b.children))
	for k, rec := range b.children {
		out = append(out, storage.Child{Key: k, Record: rec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// PendingWrites is always zero; writes apply synchronously.
func (b *Backend) PendingWrites() int {
	return 0
}
