// Package presenter turns location records into map markers and camera moves.
package presenter

import (
	"log/slog"
	"sync"

	"github.com/doggo-app/locshare/pkg/core"
)

// DefaultZoom is the camera zoom used when centering on a fix.
const DefaultZoom = 17

// Marker is a titled pin on the map.
type Marker struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Title     string  `json:"title"`
}

// Camera is the map viewport.
type Camera struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      float64 `json:"zoom"`
}

// Surface is a drawable map.
type Surface interface {
	Clear()
	AddMarker(m Marker)
	MoveCamera(c Camera)
}

// Flusher is implemented by surfaces that batch drawing, such as file output.
type Flusher interface {
	Flush() error
}

// Presenter redraws a Surface. It is safe for use from the subscriber and
// the position goroutines at the same time.
type Presenter struct {
	mu      sync.Mutex
	surface Surface
	zoom    float64
	logger  *slog.Logger
}

// New creates a presenter drawing on surface. A zoom of 0 means DefaultZoom.
func New(surface Surface, zoom float64, logger *slog.Logger) *Presenter {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Presenter{surface: surface, zoom: zoom, logger: logger}
}

// MarkerFor builds the marker shown for rec.
func MarkerFor(rec core.LocationRecord) Marker {
	return Marker{
		ID:        rec.ID,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Title:     rec.Label(),
	}
}

// Render clears the surface and draws one marker per record.
func (p *Presenter) Render(records []core.LocationRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.surface.Clear()
	for _, rec := range records {
		p.surface.AddMarker(MarkerFor(rec))
	}
	p.flush()
}

// Center moves the camera onto pos.
func (p *Presenter) Center(pos core.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.surface.MoveCamera(Camera{Latitude: pos.Latitude, Longitude: pos.Longitude, Zoom: p.zoom})
	p.flush()
}

func (p *Presenter) flush() {
	f, ok := p.surface.(Flusher)
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		p.logger.Error("Error flushing map surface", "error", err)
	}
}
