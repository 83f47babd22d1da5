package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeStats struct{ subs, pending int }

func (f fakeStats) SubscriberCount() int { return f.subs }
func (f fakeStats) PendingWrites() int   { return f.pending }

type recordingWriter struct {
	mu     sync.Mutex
	fields []map[string]any
}

func (w *recordingWriter) WriteStats(_ context.Context, fields map[string]any, _ time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fields = append(w.fields, fields)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.fields)
}

func TestGetStatus(t *testing.T) {
	s := NewService(Dependencies{
		Stats:   fakeStats{subs: 2, pending: 5},
		Clients: func() int { return 3 },
	})

	st := s.GetStatus()
	assert.Equal(t, 2, st.Subscribers)
	assert.Equal(t, 5, st.PendingWrites)
	assert.Equal(t, 3, st.Clients)
	assert.False(t, st.Time.IsZero())
	assert.Equal(t, map[string]any{"subscribers": 2, "pending_writes": 5, "clients": 3}, st.Fields())
}

func TestGetStatus_NoSources(t *testing.T) {
	st := NewService(Dependencies{}).GetStatus()
	assert.Zero(t, st.Subscribers)
	assert.Zero(t, st.Clients)
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sink := &recordingWriter{}
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{
		Stats:      fakeStats{subs: 1},
		Sink:       sink,
		StatusPath: path,
		Interval:   10 * time.Millisecond,
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return sink.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, 1, st.Subscribers)
}

func TestStart_BadStatusPath(t *testing.T) {
	s := NewService(Dependencies{StatusPath: filepath.Join(t.TempDir(), "missing", "status.json")})
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}
