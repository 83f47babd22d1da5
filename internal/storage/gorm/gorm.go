// Package gormstorage implements the storage.Backend interface using GORM.
// Current values live in the locations table; every write is also appended to
// location_histories through an internal queue drained by a background writer.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/doggo-app/locshare/internal/database"
	"github.com/doggo-app/locshare/internal/logging"
	"github.com/doggo-app/locshare/internal/model"
	"github.com/doggo-app/locshare/internal/model/convert"
	"github.com/doggo-app/locshare/internal/queue"
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultFlushInterval = time.Second
	defaultHistoryLimit  = 100000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB                 *gorm.DB
	LogManager         *logging.SlogManager
	ChildPrefix        string
	SubscriptionBuffer int
	FlushInterval      time.Duration // history writer period
	HistoryLimit       int           // max queued history rows before the oldest are dropped
}

// Backend implements storage.Backend on top of a GORM connection.
type Backend struct {
	deps    Dependencies
	hub     *storage.Hub
	history *queue.Queue[model.LocationHistory]

	// mu serializes writes with subscription snapshots.
	mu     sync.Mutex
	closed bool

	stopChan   chan struct{}
	writerDone chan struct{}
	now        func() time.Time
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = defaultHistoryLimit
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{
		deps:    deps,
		hub:     storage.NewHub(deps.SubscriptionBuffer),
		history: queue.New[model.LocationHistory](),
		now:     time.Now,
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the history writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend requires a database connection")
	}
	if err := database.Setup(b.deps.DB, b.deps.ChildPrefix); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.writerDone = make(chan struct{})
	go b.historyWriter()
	return nil
}

// Close ends all subscriptions, stops the writer and flushes pending history.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.hub.Close()
	b.mu.Unlock()

	if b.stopChan != nil {
		close(b.stopChan)
		<-b.writerDone
	}
	return nil
}

// Set overwrites the value at key, emitting Added or Changed.
func (b *Backend) Set(ctx context.Context, key string, rec core.LocationRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return storage.ErrClosed
	}

	db := b.deps.DB.WithContext(ctx)
	existing, found, err := b.find(db, key)
	if err != nil {
		return err
	}

	loc := convert.CoreToLocation(key, rec)
	kind := storage.EventAdded
	if found {
		kind = storage.EventChanged
		loc.CreatedAt = existing.CreatedAt
		err = db.Save(&loc).Error
	} else {
		err = db.Create(&loc).Error
	}
	if err != nil {
		return fmt.Errorf("failed to write location %s: %w", key, err)
	}

	b.enqueueHistory(convert.CoreToHistory(model.OpSet, key, rec, b.now()))
	b.hub.Publish(storage.Event{Kind: kind, Key: key, Record: rec})
	return nil
}

// Delete removes the value at key, emitting Removed. Deleting an absent key is a no-op.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return storage.ErrClosed
	}

	db := b.deps.DB.WithContext(ctx)
	existing, found, err := b.find(db, key)
	if err != nil || !found {
		return err
	}

	if err := db.Delete(&model.Location{Key: key}).Error; err != nil {
		return fmt.Errorf("failed to delete location %s: %w", key, err)
	}

	rec := convert.LocationToCore(existing)
	b.enqueueHistory(convert.CoreToHistory(model.OpDelete, key, rec, b.now()))
	b.hub.Publish(storage.Event{Kind: storage.EventRemoved, Key: key, Record: rec})
	return nil
}

// Get returns the value at key.
func (b *Backend) Get(ctx context.Context, key string) (core.LocationRecord, error) {
	loc, found, err := b.find(b.deps.DB.WithContext(ctx), key)
	if err != nil {
		return core.LocationRecord{}, err
	}
	if !found {
		return core.LocationRecord{}, storage.ErrNotFound
	}
	return convert.LocationToCore(loc), nil
}

// Children returns every child sorted by key.
func (b *Backend) Children(ctx context.Context) ([]storage.Child, error) {
	return b.children(b.deps.DB.WithContext(ctx))
}

// Subscribe replays the current children and streams changes.
func (b *Backend) Subscribe(ctx context.Context) (*storage.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, storage.ErrClosed
	}

	snapshot, err := b.children(b.deps.DB.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return b.hub.Subscribe(ctx, snapshot)
}

// History returns up to limit fixes recorded at key, oldest first.
// Rows still queued for the writer are not included.
func (b *Backend) History(ctx context.Context, key string, limit int) ([]core.Position, error) {
	if key == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	var rows []model.LocationHistory
	err := b.deps.DB.WithContext(ctx).
		Where(&model.LocationHistory{Key: key, Op: model.OpSet}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "time"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", key, err)
	}

	out := make([]core.Position, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = convert.HistoryToPosition(row)
	}
	return out, nil
}

// SubscriberCount returns the number of live subscriptions.
func (b *Backend) SubscriberCount() int {
	return b.hub.Len()
}

// PendingWrites returns the number of history rows waiting for the writer.
func (b *Backend) PendingWrites() int {
	return b.history.Len()
}

// Flush writes all queued history rows now.
func (b *Backend) Flush() error {
	return b.writeHistory()
}

func (b *Backend) find(db *gorm.DB, key string) (model.Location, bool, error) {
	if key == "" {
		return model.Location{}, false, nil
	}
	var loc model.Location
	err := db.Where(&model.Location{Key: key}).First(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Location{}, false, nil
	}
	if err != nil {
		return model.Location{}, false, fmt.Errorf("failed to read location %s: %w", key, err)
	}
	return loc, true, nil
}

func (b *Backend) children(db *gorm.DB) ([]storage.Child, error) {
	var rows []model.Location
	err := db.Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	out := make([]storage.Child, len(rows))
	for i, row := range rows {
		out[i] = convert.LocationToChild(row)
	}
	return out, nil
}

func (b *Backend) enqueueHistory(h model.LocationHistory) {
	b.history.Push(h)
	if dropped := b.history.Trim(b.deps.HistoryLimit); dropped > 0 {
		b.deps.LogManager.Logger().Warn("history queue full, dropped oldest rows", "dropped", dropped)
	}
}

// historyWriter periodically drains the history queue into the database.
func (b *Backend) historyWriter() {
	defer close(b.writerDone)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	log := b.deps.LogManager.Logger()
	for {
		select {
		case <-b.stopChan:
			if err := b.writeHistory(); err != nil {
				log.Error("final history flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := b.writeHistory(); err != nil {
				log.Error("history flush failed", "error", err)
			}
		}
	}
}

func (b *Backend) writeHistory() error {
	if b.history.Empty() {
		return nil
	}
	rows := b.history.GetAndEmpty()
	start := time.Now()
	if err := b.deps.DB.Create(&rows).Error; err != nil {
		b.history.Push(rows...)
		b.history.Trim(b.deps.HistoryLimit)
		return fmt.Errorf("failed to write %d history rows: %w", len(rows), err)
	}
	b.deps.LogManager.Logger().Debug("wrote history", "rows", len(rows), "duration", time.Since(start))
	return nil
}
