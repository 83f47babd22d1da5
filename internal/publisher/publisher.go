// Package publisher broadcasts the local actor's position to the keyed store.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/doggo-app/locshare/internal/position"
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/core"
)

const deleteTimeout = 5 * time.Second

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("publisher already started")
	// ErrNoActor is returned when no actor id is configured.
	ErrNoActor = errors.New("publisher has no actor id")
)

// Store is the part of storage.Backend the publisher writes to.
type Store interface {
	Set(ctx context.Context, key string, rec core.LocationRecord) error
	Delete(ctx context.Context, key string) error
}

// Dependencies holds all dependencies for the publisher
type Dependencies struct {
	Store       Store
	Source      position.Source
	Gate        *position.Gate // nil means always granted
	ActorID     string
	ChildPrefix string
	Request     position.Request
	Logger      *slog.Logger
	OnFix       func(core.Position) // optional, called after every publish attempt
}

// Publisher overwrites the actor's keyed entry on every tick and deletes it
// when it stops.
type Publisher struct {
	deps Dependencies
	key  string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	retireOnce sync.Once
	retireErr  error
}

// New creates a publisher. Call Start to begin publishing.
func New(deps Dependencies) *Publisher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Publisher{
		deps: deps,
		key:  storage.Key(deps.ChildPrefix, deps.ActorID),
	}
}

// Key is the store key this publisher owns.
func (p *Publisher) Key() string {
	return p.key
}

// Start begins the tick loop. The loop ends and the keyed entry is deleted
// when ctx is done or Stop is called.
func (p *Publisher) Start(ctx context.Context) error {
	if p.deps.ActorID == "" {
		return ErrNoActor
	}
	if p.deps.Store == nil || p.deps.Source == nil {
		return fmt.Errorf("publisher needs a store and a position source")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(loopCtx, context.WithoutCancel(ctx))
	return nil
}

// Stop ends the tick loop, waits for it and deletes the keyed entry. It is
// safe to call more than once and returns the delete result every time.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	started, cancel, done := p.started, p.cancel, p.done
	p.mu.Unlock()

	if !started {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.retireErr
}

// Done is closed once the loop has exited and the entry is deleted.
func (p *Publisher) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.done
}

func (p *Publisher) run(ctx, cleanupCtx context.Context) {
	defer close(p.done)
	defer p.retire(cleanupCtx)

	logger := p.deps.Logger.With("key", p.key)
	logger.Info("Publishing location", "interval", p.deps.Request.Period())

	ticker := time.NewTicker(p.deps.Request.Period())
	defer ticker.Stop()

	suspended := false
	for {
		suspended = p.tick(ctx, logger, suspended)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick publishes one fix. It returns whether publishing is suspended.
func (p *Publisher) tick(ctx context.Context, logger *slog.Logger, suspended bool) bool {
	if !p.deps.Gate.Granted() {
		if !suspended {
			logger.Warn("Location permission not granted, publishing suspended")
		}
		return true
	}
	pos, ok, err := p.deps.Source.LastKnown(ctx)
	if err != nil {
		if errors.Is(err, position.ErrPermissionDenied) {
			if !suspended {
				logger.Warn("Location permission not granted, publishing suspended")
			}
			return true
		}
		logger.Error("Error reading position", "error", err)
		return false
	}
	if suspended {
		logger.Info("Location permission granted, publishing resumed")
	}
	if !ok {
		return false
	}

	if err := p.deps.Store.Set(ctx, p.key, pos.Record(p.deps.ActorID)); err != nil && ctx.Err() == nil {
		logger.Error("Error publishing location", "error", err)
	}
	if p.deps.OnFix != nil {
		p.deps.OnFix(pos)
	}
	return false
}

func (p *Publisher) retire(ctx context.Context) {
	p.retireOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
		defer cancel()

		if err := p.deps.Store.Delete(ctx, p.key); err != nil {
			p.retireErr = fmt.Errorf("failed to delete %s: %w", p.key, err)
			p.deps.Logger.Error("Error removing location", "key", p.key, "error", err)
			return
		}
		p.deps.Logger.Info("Location removed", "key", p.key)
	})
}
