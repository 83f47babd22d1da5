package surface

import (
	"sync"

	"github.com/doggo-app/locshare/internal/presenter"
)

// Memory keeps the drawn state for inspection.
type Memory struct {
	mu      sync.Mutex
	markers []presenter.Marker
	camera  presenter.Camera
	moves   int
}

// NewMemory creates an empty in-memory surface.
func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = nil
}

func (s *Memory) AddMarker(m presenter.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, m)
}

func (s *Memory) MoveCamera(c presenter.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = c
	s.moves++
}

// Markers returns a copy of the markers currently drawn.
func (s *Memory) Markers() []presenter.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]presenter.Marker, len(s.markers))
	copy(out, s.markers)
	return out
}

// Camera returns the last camera position and how many times it moved.
func (s *Memory) Camera() (presenter.Camera, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera, s.moves
}
