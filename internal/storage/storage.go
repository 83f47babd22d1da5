// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/doggo-app/locshare/pkg/core"
)

var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("storage closed")
	// ErrSlowSubscriber is reported by a subscription that was dropped because
	// its owner stopped draining events.
	ErrSlowSubscriber = errors.New("subscriber fell behind")
)

// Child is one entry directly under the store root.
type Child struct {
	Key    string              `json:"key"`
	Record core.LocationRecord `json:"record"`
}

// Backend is the interface all keyed store implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Writes overwrite or remove the value at key.
	Set(ctx context.Context, key string, rec core.LocationRecord) error
	Delete(ctx context.Context, key string) error

	// Reads
	Get(ctx context.Context, key string) (core.LocationRecord, error)
	Children(ctx context.Context) ([]Child, error)

	// Subscribe returns a subscription to every child of the root. Existing
	// children are delivered first as EventAdded. The subscription ends when
	// ctx is done or it is closed.
	Subscribe(ctx context.Context) (*Subscription, error)
}

// Exportable is an optional interface for backends that write a snapshot file on Close.
type Exportable interface {
	GetExportedFilePath() string
}

// HistoryReader is an optional interface for backends that keep every write.
type HistoryReader interface {
	// History returns up to limit fixes recorded at key, oldest first.
	History(ctx context.Context, key string, limit int) ([]core.Position, error)
}

// Stats is an optional interface for backends that report runtime counters.
type Stats interface {
	SubscriberCount() int
	PendingWrites() int
}

// Key builds the child key for an actor: the configured prefix followed by the actor id.
func Key(prefix, actorID string) string {
	return prefix + actorID
}
