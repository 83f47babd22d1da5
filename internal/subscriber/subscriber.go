// Package subscriber keeps a local view of every published location and
// redraws it whenever the store reports a change.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/core"
)

// Renderer draws the full set of records.
type Renderer interface {
	Render(records []core.LocationRecord)
}

// Source is the part of storage.Backend the subscriber reads from.
type Source interface {
	Subscribe(ctx context.Context) (*storage.Subscription, error)
}

// Dependencies holds all dependencies for the subscriber
type Dependencies struct {
	Store        Source
	Renderer     Renderer
	Logger       *slog.Logger
	OnSubscribed func()              // optional, called each time a subscription is registered
	OnEvent      func(storage.Event) // optional, called after an event is applied
}

// Subscriber reduces store events into an ObservationSet on a single goroutine.
type Subscriber struct {
	deps Dependencies
	set  *ObservationSet
}

// New creates a subscriber with an empty observation set.
func New(deps Dependencies) *Subscriber {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Subscriber{deps: deps, set: NewObservationSet()}
}

// Run subscribes and applies events until ctx is done or the store ends the
// subscription. A subscription dropped for falling behind is replaced and the
// set rebuilt from the fresh snapshot. Run returns nil on a clean teardown.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.deps.Store == nil || s.deps.Renderer == nil {
		return fmt.Errorf("subscriber needs a store and a renderer")
	}

	for {
		sub, err := s.deps.Store.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to subscribe: %w", err)
		}
		if s.deps.OnSubscribed != nil {
			s.deps.OnSubscribed()
		}

		err = s.consume(ctx, sub)
		if !errors.Is(err, storage.ErrSlowSubscriber) {
			return err
		}

		s.deps.Logger.Warn("Subscription fell behind, resubscribing")
		s.set.Reset()
		s.deps.Renderer.Render(s.set.Records())
	}
}

func (s *Subscriber) consume(ctx context.Context, sub *storage.Subscription) error {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return sub.Err()
			}
			s.apply(e)
		}
	}
}

func (s *Subscriber) apply(e storage.Event) {
	if e.Kind == storage.EventMoved {
		s.deps.Logger.Debug("Ignoring moved child", "key", e.Key)
	} else if s.set.Apply(e) {
		s.deps.Renderer.Render(s.set.Records())
	}
	if s.deps.OnEvent != nil {
		s.deps.OnEvent(e)
	}
}
