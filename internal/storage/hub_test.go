package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func recv(t *testing.T, sub *storage.Subscription) storage.Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return storage.Event{}
	}
}

func TestHub_SnapshotThenLive(t *testing.T) {
	h := storage.NewHub(4)
	defer h.Close()

	snapshot := []storage.Child{
		{Key: "dogLocationA", Record: core.NewLocationRecord("A", 1, 2)},
	}
	sub, err := h.Subscribe(context.Background(), snapshot)
	require.NoError(t, err)

	e := recv(t, sub)
	assert.Equal(t, storage.EventAdded, e.Kind)
	assert.Equal(t, "A", e.Record.ID)

	h.Publish(storage.Event{Kind: storage.EventChanged, Key: "dogLocationA", Record: core.NewLocationRecord("A", 3, 4)})
	e = recv(t, sub)
	assert.Equal(t, storage.EventChanged, e.Kind)
	assert.Equal(t, 3.0, e.Record.Latitude)
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h := storage.NewHub(1)
	defer h.Close()

	sub, err := h.Subscribe(context.Background(), nil)
	require.NoError(t, err)

	h.Publish(storage.Event{Kind: storage.EventAdded, Key: "a"})
	h.Publish(storage.Event{Kind: storage.EventAdded, Key: "b"})

	<-sub.Done()
	assert.ErrorIs(t, sub.Err(), storage.ErrSlowSubscriber)
	assert.Equal(t, 0, h.Len())
}

func TestHub_ContextCancelDeregisters(t *testing.T) {
	h := storage.NewHub(0)
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.Subscribe(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Len())

	cancel()
	<-sub.Done()
	assert.NoError(t, sub.Err())
	assert.Equal(t, 0, h.Len())
}

func TestHub_CloseRejectsNewSubscriptions(t *testing.T) {
	h := storage.NewHub(0)
	h.Close()

	_, err := h.Subscribe(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	h := storage.NewHub(0)
	defer h.Close()

	sub, err := h.Subscribe(context.Background(), nil)
	require.NoError(t, err)
	sub.Close()
	sub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestDetachedSubscription_Deliver(t *testing.T) {
	sub := storage.NewSubscription(1)

	assert.True(t, sub.Deliver(storage.Event{Kind: storage.EventAdded, Key: "a"}))
	assert.False(t, sub.Deliver(storage.Event{Kind: storage.EventAdded, Key: "b"}))
	assert.ErrorIs(t, sub.Err(), storage.ErrSlowSubscriber)

	e, ok := <-sub.Events()
	require.True(t, ok)
	assert.Equal(t, "a", e.Key)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "added", storage.EventAdded.String())
	assert.Equal(t, "changed", storage.EventChanged.String())
	assert.Equal(t, "removed", storage.EventRemoved.String())
	assert.Equal(t, "moved", storage.EventMoved.String())
	assert.Equal(t, "unknown", storage.EventKind(0).String())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "dogLocationuser-1", storage.Key("dogLocation", "user-1"))
}
