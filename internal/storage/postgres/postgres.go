// Package postgres implements the storage.Backend interface using GORM/PostgreSQL.
// When Postgres cannot be reached the database manager falls back to an
// in-memory SQLite database so the store keeps serving.
package postgres

import (
	"fmt"

	"github.com/doggo-app/locshare/internal/database"
	"github.com/doggo-app/locshare/internal/logging"
	gormstorage "github.com/doggo-app/locshare/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	// Manager is connected during Init when its DB is nil.
	Manager            *database.Manager
	LogManager         *logging.SlogManager
	ChildPrefix        string
	SubscriptionBuffer int
}

// Backend wraps the GORM backend with connection management.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend. The connection is opened by Init.
func New(deps Dependencies) *Backend {
	if deps.Manager == nil {
		deps.Manager = database.NewManager(zerolog.Nop())
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{deps: deps}
}

// Init connects, migrates the schema and starts the embedded GORM backend.
func (b *Backend) Init() error {
	m := b.deps.Manager
	if m.DB == nil {
		if err := m.Connect(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
	}
	if m.ShouldSaveLocal {
		b.deps.LogManager.Logger().Warn("Postgres unavailable, serving from in-memory SQLite")
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:                 m.DB,
		LogManager:         b.deps.LogManager,
		ChildPrefix:        b.deps.ChildPrefix,
		SubscriptionBuffer: b.deps.SubscriptionBuffer,
	})
	if err := b.Backend.Init(); err != nil {
		return err
	}

	b.deps.LogManager.Logger().Info("Database setup complete", "dialect", m.DB.Dialector.Name())
	return nil
}

// Close stops the GORM backend and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.deps.Manager.Close()
}

// IsFallback reports whether the store is running on the SQLite fallback.
func (b *Backend) IsFallback() bool {
	return b.deps.Manager.ShouldSaveLocal
}
