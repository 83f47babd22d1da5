// Package storagetest holds behaviour checks shared by every storage.Backend.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an initialized backend. The suite closes it.
type Factory func(t *testing.T) storage.Backend

// Run exercises the keyed store contract against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		_, err := b.Get(context.Background(), "dogLocationnobody")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("SetGetOverwrite", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := context.Background()

		require.NoError(t, b.Set(ctx, "dogLocationA", core.NewLocationRecord("A", 47.1, -117.2)))
		require.NoError(t, b.Set(ctx, "dogLocationA", core.NewLocationRecord("A", 47.2, -117.3)))

		got, err := b.Get(ctx, "dogLocationA")
		require.NoError(t, err)
		assert.Equal(t, core.NewLocationRecord("A", 47.2, -117.3), got)

		children, err := b.Children(ctx)
		require.NoError(t, err)
		assert.Len(t, children, 1)
	})

	t.Run("DeleteThenGetNotPresent", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := context.Background()

		require.NoError(t, b.Set(ctx, "dogLocationA", core.NewLocationRecord("A", 1, 2)))
		require.NoError(t, b.Delete(ctx, "dogLocationA"))

		_, err := b.Get(ctx, "dogLocationA")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, b.Delete(ctx, "dogLocationA"), "deleting an absent key is a no-op")
	})

	t.Run("SubscribeReplaysExistingChildren", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		require.NoError(t, b.Set(ctx, "dogLocationA", core.NewLocationRecord("A", 1, 2)))
		require.NoError(t, b.Set(ctx, "dogLocationB", core.NewLocationRecord("B", 3, 4)))

		sub, err := b.Subscribe(ctx)
		require.NoError(t, err)
		defer sub.Close()

		seen := map[string]storage.EventKind{}
		for i := 0; i < 2; i++ {
			e := Next(t, sub)
			seen[e.Record.ID] = e.Kind
		}
		assert.Equal(t, map[string]storage.EventKind{"A": storage.EventAdded, "B": storage.EventAdded}, seen)
	})

	t.Run("SubscribeLiveEvents", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sub, err := b.Subscribe(ctx)
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, b.Set(ctx, "dogLocationA", core.NewLocationRecord("A", 47.1, -117.2)))
		require.NoError(t, b.Set(ctx, "dogLocationA", core.NewLocationRecord("A", 47.2, -117.3)))
		require.NoError(t, b.Delete(ctx, "dogLocationA"))

		e := Next(t, sub)
		assert.Equal(t, storage.EventAdded, e.Kind)
		assert.Equal(t, "dogLocationA", e.Key)
		assert.Equal(t, 47.1, e.Record.Latitude)

		e = Next(t, sub)
		assert.Equal(t, storage.EventChanged, e.Kind)
		assert.Equal(t, 47.2, e.Record.Latitude)

		e = Next(t, sub)
		assert.Equal(t, storage.EventRemoved, e.Kind)
		assert.Equal(t, "A", e.Record.ID)
	})

	t.Run("CancelEndsSubscription", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		ctx, cancel := context.WithCancel(context.Background())
		sub, err := b.Subscribe(ctx)
		require.NoError(t, err)

		cancel()
		select {
		case <-sub.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("subscription not closed after cancel")
		}
	})
}

// Next waits for the next event on sub.
func Next(t *testing.T, sub *storage.Subscription) storage.Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "subscription closed: %v", sub.Err())
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return storage.Event{}
	}
}
