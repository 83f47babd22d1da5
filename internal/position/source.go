package position

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/doggo-app/locshare/internal/geo"
	"github.com/doggo-app/locshare/pkg/core"
)

// Static always reports the same fix, or none.
type Static struct {
	pos core.Position
	ok  bool
}

// NewStatic creates a source fixed at pos.
func NewStatic(pos core.Position) *Static {
	return &Static{pos: pos, ok: true}
}

// Unavailable creates a source that never has a fix.
func Unavailable() *Static {
	return &Static{}
}

// LastKnown returns the fixed position.
func (s *Static) LastKnown(context.Context) (core.Position, bool, error) {
	return s.pos, s.ok, nil
}

// Updates sends the fixed position once, if there is one.
func (s *Static) Updates(ctx context.Context, _ Request) (<-chan core.Position, error) {
	ch := make(chan core.Position, 1)
	if s.ok {
		ch <- s.pos
	}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Replay walks a recorded track. Every LastKnown call advances one fix; the
// last fix repeats once the track is exhausted unless Loop is set.
type Replay struct {
	Loop bool

	mu    sync.Mutex
	track []core.Position
	next  int
	now   func() time.Time
}

// NewReplay creates a replay over track.
func NewReplay(track []core.Position) *Replay {
	return &Replay{track: track, now: time.Now}
}

// LoadReplay reads a JSON track file, see geo.ParseTrack.
func LoadReplay(path string, step time.Duration) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read track %s: %w", path, err)
	}
	track, err := geo.ParseTrack(data, time.Now(), step)
	if err != nil {
		return nil, err
	}
	return NewReplay(track), nil
}

// LastKnown returns the next fix of the track, stamped with the current time.
func (r *Replay) LastKnown(context.Context) (core.Position, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.track) == 0 {
		return core.Position{}, false, nil
	}
	p := r.track[r.next]
	switch {
	case r.next < len(r.track)-1:
		r.next++
	case r.Loop:
		r.next = 0
	}
	p.Time = r.now()
	return p, true, nil
}

// Updates emits one fix per request period until ctx is done.
func (r *Replay) Updates(ctx context.Context, req Request) (<-chan core.Position, error) {
	ch := make(chan core.Position)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(req.Period())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			p, ok, _ := r.LastKnown(ctx)
			if !ok {
				continue
			}
			select {
			case ch <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
