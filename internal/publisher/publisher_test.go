package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/doggo-app/locshare/internal/config"
	"github.com/doggo-app/locshare/internal/position"
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/internal/storage/memory"
	"github.com/doggo-app/locshare/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var fastRequest = position.Request{Interval: 5 * time.Millisecond}

type fakeStore struct {
	mu      sync.Mutex
	sets    []core.LocationRecord
	deletes []string
	setErr  error
}

func (s *fakeStore) Set(_ context.Context, _ string, rec core.LocationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, rec)
	return s.setErr
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, key)
	return nil
}

func (s *fakeStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}

func (s *fakeStore) deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

func TestPublish_StopDeletesEntry(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := memory.New(config.MemoryConfig{}, 16)
	require.NoError(t, backend.Init())
	defer backend.Close()

	p := New(Dependencies{
		Store:       backend,
		Source:      position.NewStatic(core.Position{Latitude: 47.1, Longitude: -117.2}),
		ActorID:     "A",
		ChildPrefix: "dogLocation",
		Request:     fastRequest,
	})
	assert.Equal(t, "dogLocationA", p.Key())
	require.NoError(t, p.Start(context.Background()))

	ctx := context.Background()
	require.Eventually(t, func() bool {
		_, err := backend.Get(ctx, "dogLocationA")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	rec, err := backend.Get(ctx, "dogLocationA")
	require.NoError(t, err)
	assert.Equal(t, core.NewLocationRecord("A", 47.1, -117.2), rec)

	require.NoError(t, p.Stop(ctx))
	_, err = backend.Get(ctx, "dogLocationA")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPublish_SkipsUnavailablePosition(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &fakeStore{}
	p := New(Dependencies{
		Store:   store,
		Source:  position.Unavailable(),
		ActorID: "A",
		Request: fastRequest,
	})
	require.NoError(t, p.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, p.Stop(context.Background()))

	assert.Zero(t, store.setCount())
	assert.Equal(t, []string{"A"}, store.deleted())
}

func TestPublish_SuspendedWhileNotGranted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &fakeStore{}
	gate := position.NewGate(false)
	p := New(Dependencies{
		Store:   store,
		Source:  position.NewStatic(core.Position{Latitude: 1, Longitude: 2}),
		Gate:    gate,
		ActorID: "A",
		Request: fastRequest,
	})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, store.setCount())

	gate.Grant()
	assert.Eventually(t, func() bool { return store.setCount() > 0 }, time.Second, 5*time.Millisecond)
}

func TestPublish_GuardedSourceSuspends(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &fakeStore{}
	gate := position.NewGate(false)
	p := New(Dependencies{
		Store:   store,
		Source:  position.Guard(position.NewStatic(core.Position{Latitude: 1}), gate),
		ActorID: "A",
		Request: fastRequest,
	})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, store.setCount())

	gate.Grant()
	assert.Eventually(t, func() bool { return store.setCount() > 0 }, time.Second, 5*time.Millisecond)
}

func TestPublish_WriteErrorKeepsTicking(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &fakeStore{setErr: errors.New("offline")}
	fixes := make(chan core.Position, 16)
	p := New(Dependencies{
		Store:   store,
		Source:  position.NewStatic(core.Position{Latitude: 1}),
		ActorID: "A",
		Request: fastRequest,
		OnFix: func(pos core.Position) {
			select {
			case fixes <- pos:
			default:
			}
		},
	})
	require.NoError(t, p.Start(context.Background()))

	<-fixes
	<-fixes
	require.NoError(t, p.Stop(context.Background()))
	assert.GreaterOrEqual(t, store.setCount(), 2)
}

func TestStop_Idempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &fakeStore{}
	p := New(Dependencies{
		Store:   store,
		Source:  position.NewStatic(core.Position{}),
		ActorID: "A",
		Request: fastRequest,
	})
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop(context.Background()))
	require.NoError(t, p.Stop(context.Background()))

	assert.Equal(t, []string{"A"}, store.deleted())
}

func TestStop_BeforeStart(t *testing.T) {
	store := &fakeStore{}
	p := New(Dependencies{Store: store, Source: position.Unavailable(), ActorID: "A"})
	assert.NoError(t, p.Stop(context.Background()))
	assert.Empty(t, store.deleted())

	select {
	case <-p.Done():
	default:
		t.Fatal("Done should be closed before Start")
	}
}

func TestCancelDeletesEntry(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &fakeStore{}
	p := New(Dependencies{
		Store:       store,
		Source:      position.NewStatic(core.Position{}),
		ActorID:     "A",
		ChildPrefix: "dogLocation",
		Request:     fastRequest,
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop on cancel")
	}
	assert.Equal(t, []string{"dogLocationA"}, store.deleted())
}

func TestStart_Errors(t *testing.T) {
	store := &fakeStore{}

	p := New(Dependencies{Store: store, Source: position.Unavailable()})
	assert.ErrorIs(t, p.Start(context.Background()), ErrNoActor)

	p = New(Dependencies{ActorID: "A"})
	assert.Error(t, p.Start(context.Background()))

	p = New(Dependencies{Store: store, Source: position.Unavailable(), ActorID: "A", Request: fastRequest})
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, p.Stop(context.Background()))
}
