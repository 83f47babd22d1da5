// Package position provides device fixes to the publisher and the camera.
package position

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/doggo-app/locshare/pkg/core"
)

// ErrPermissionDenied is returned while the location capability is not granted.
var ErrPermissionDenied = errors.New("location permission not granted")

// Request holds location update parameters.
type Request struct {
	Interval        time.Duration
	FastestInterval time.Duration
	HighAccuracy    bool
}

// DefaultRequest asks for a fix every second, never faster than every 500ms.
func DefaultRequest() Request {
	return Request{
		Interval:        time.Second,
		FastestInterval: 500 * time.Millisecond,
		HighAccuracy:    true,
	}
}

// Period is the spacing between updates: Interval, but never below FastestInterval.
func (r Request) Period() time.Duration {
	d := r.Interval
	if d < r.FastestInterval {
		d = r.FastestInterval
	}
	if d <= 0 {
		d = DefaultRequest().Interval
	}
	return d
}

// Source yields device fixes.
type Source interface {
	// LastKnown returns the most recent fix. ok is false when no fix is
	// available, which is not an error.
	LastKnown(ctx context.Context) (pos core.Position, ok bool, err error)

	// Updates streams fixes until ctx is done, then closes the channel.
	Updates(ctx context.Context, req Request) (<-chan core.Position, error)
}

// Gate tracks whether the location capability is granted.
type Gate struct {
	mu      sync.Mutex
	granted bool
	changes []chan bool
}

// NewGate creates a gate in the given state.
func NewGate(granted bool) *Gate {
	return &Gate{granted: granted}
}

// Grant allows location access.
func (g *Gate) Grant() { g.set(true) }

// Revoke withdraws location access.
func (g *Gate) Revoke() { g.set(false) }

// Granted reports the current state. A nil gate is always granted.
func (g *Gate) Granted() bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.granted
}

// Check returns ErrPermissionDenied unless access is granted.
func (g *Gate) Check() error {
	if !g.Granted() {
		return ErrPermissionDenied
	}
	return nil
}

// Changes returns a channel that receives every state change. Slow readers
// miss intermediate states; Granted is always authoritative.
func (g *Gate) Changes() <-chan bool {
	ch := make(chan bool, 1)
	g.mu.Lock()
	g.changes = append(g.changes, ch)
	g.mu.Unlock()
	return ch
}

func (g *Gate) set(granted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.granted == granted {
		return
	}
	g.granted = granted
	for _, ch := range g.changes {
		select {
		case ch <- granted:
		default:
		}
	}
}

// Guard wraps src so that it fails with ErrPermissionDenied while gate is not granted.
func Guard(src Source, gate *Gate) Source {
	return &guarded{src: src, gate: gate}
}

type guarded struct {
	src  Source
	gate *Gate
}

func (g *guarded) LastKnown(ctx context.Context) (core.Position, bool, error) {
	if err := g.gate.Check(); err != nil {
		return core.Position{}, false, err
	}
	return g.src.LastKnown(ctx)
}

// Updates drops fixes produced while the gate is closed.
func (g *guarded) Updates(ctx context.Context, req Request) (<-chan core.Position, error) {
	if err := g.gate.Check(); err != nil {
		return nil, err
	}
	in, err := g.src.Updates(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan core.Position)
	go func() {
		defer close(out)
		for p := range in {
			if !g.gate.Granted() {
				continue
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
