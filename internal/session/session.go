package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/doggo-app/locshare/internal/position"
	"github.com/doggo-app/locshare/internal/presenter"
	"github.com/doggo-app/locshare/internal/publisher"
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/internal/subscriber"
)

// WalkerDependencies holds all dependencies for a walker session
type WalkerDependencies struct {
	Store       publisher.Store
	Source      position.Source
	Gate        *position.Gate
	Surface     presenter.Surface
	ActorID     string
	ChildPrefix string
	Request     position.Request
	Zoom        float64
	Logger      *slog.Logger
}

// Walker publishes the local position and follows it with the camera.
type Walker struct {
	machine Machine
	deps    WalkerDependencies
}

// NewWalker creates a walker session.
func NewWalker(deps WalkerDependencies) *Walker {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Walker{deps: deps}
}

// State returns the session's lifecycle state.
func (w *Walker) State() State { return w.machine.State() }

// Run publishes until ctx is done, then removes the walker's entry and tears
// the session down.
func (w *Walker) Run(ctx context.Context) error {
	logger := w.deps.Logger.With("role", "walker")
	if err := w.machine.Transition(MapReady); err != nil {
		return err
	}
	defer w.teardown(logger)

	pres := presenter.New(w.deps.Surface, w.deps.Zoom, logger)
	pub := publisher.New(publisher.Dependencies{
		Store:       w.deps.Store,
		Source:      w.deps.Source,
		Gate:        w.deps.Gate,
		ActorID:     w.deps.ActorID,
		ChildPrefix: w.deps.ChildPrefix,
		Request:     w.deps.Request,
		Logger:      logger,
		OnFix:       pres.Center,
	})
	if err := pub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start publisher: %w", err)
	}

	<-ctx.Done()
	return pub.Stop(context.WithoutCancel(ctx))
}

func (w *Walker) teardown(logger *slog.Logger) {
	if err := w.machine.Transition(TornDown); err != nil {
		logger.Error("Error tearing down session", "error", err)
		return
	}
	logger.Info("Session torn down")
}

// PetterDependencies holds all dependencies for a petter session
type PetterDependencies struct {
	Store   subscriber.Source
	Source  position.Source // optional, centers the camera on the local device
	Gate    *position.Gate  // optional, camera following resumes when it is granted
	Surface presenter.Surface
	Request position.Request
	Zoom    float64
	Logger  *slog.Logger
}

// Petter shows every published location and follows the local device with
// the camera.
type Petter struct {
	machine Machine
	deps    PetterDependencies
}

// NewPetter creates a petter session.
func NewPetter(deps PetterDependencies) *Petter {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Petter{deps: deps}
}

// State returns the session's lifecycle state.
func (p *Petter) State() State { return p.machine.State() }

// Run subscribes until ctx is done or the store ends the subscription.
func (p *Petter) Run(ctx context.Context) error {
	logger := p.deps.Logger.With("role", "petter")
	if err := p.machine.Transition(MapReady); err != nil {
		return err
	}

	pres := presenter.New(p.deps.Surface, p.deps.Zoom, logger)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		if err := p.machine.Transition(TornDown); err != nil {
			logger.Error("Error tearing down session", "error", err)
			return
		}
		logger.Info("Session torn down")
	}()

	if p.deps.Source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.follow(ctx, pres, logger)
		}()
	}

	sub := subscriber.New(subscriber.Dependencies{
		Store:    p.deps.Store,
		Renderer: pres,
		Logger:   logger,
		OnSubscribed: func() {
			if err := p.machine.Transition(Subscribed); err != nil {
				logger.Error("Error entering subscribed state", "error", err)
			}
		},
		OnEvent: func(storage.Event) {
			_ = p.machine.Transition(Subscribed)
		},
	})
	return sub.Run(ctx)
}

// follow centers the camera on the local device until ctx is done. While
// location permission is missing it waits for the gate to be granted and
// starts over.
func (p *Petter) follow(ctx context.Context, pres *presenter.Presenter, logger *slog.Logger) {
	var changes <-chan bool
	if p.deps.Gate != nil {
		changes = p.deps.Gate.Changes()
	}

	for {
		err := p.track(ctx, pres, logger)
		if !errors.Is(err, position.ErrPermissionDenied) || changes == nil {
			if err != nil {
				logger.Warn("Location permission not granted, camera will not follow")
			}
			return
		}

		logger.Warn("Location permission not granted, waiting for access")
		if !waitGranted(ctx, changes) {
			return
		}
		logger.Info("Location permission granted, camera follows again")
	}
}

// track centers the camera on the last known fix and on every update. It
// returns ErrPermissionDenied when the source refuses access.
func (p *Petter) track(ctx context.Context, pres *presenter.Presenter, logger *slog.Logger) error {
	pos, ok, err := p.deps.Source.LastKnown(ctx)
	switch {
	case errors.Is(err, position.ErrPermissionDenied):
		return err
	case err != nil:
		logger.Error("Error reading position", "error", err)
	case ok:
		pres.Center(pos)
	}

	updates, err := p.deps.Source.Updates(ctx, p.deps.Request)
	if errors.Is(err, position.ErrPermissionDenied) {
		return err
	}
	if err != nil {
		logger.Warn("Location updates unavailable", "error", err)
		return nil
	}
	for pos := range updates {
		pres.Center(pos)
	}
	return nil
}

func waitGranted(ctx context.Context, changes <-chan bool) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case granted := <-changes:
			if granted {
				return true
			}
		}
	}
}
