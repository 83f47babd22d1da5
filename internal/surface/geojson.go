// Package surface provides map surfaces for the presenter: a GeoJSON file
// that map viewers can poll, and an in-memory surface.
package surface

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/doggo-app/locshare/internal/geo"
	"github.com/doggo-app/locshare/internal/presenter"
	"github.com/peterstace/simplefeatures/geom"
)

const (
	kindMarker = "marker"
	kindCamera = "camera"
)

// GeoJSON buffers drawing calls and writes them as a FeatureCollection on
// Flush. Each marker is a Point feature; the camera, once set, is one more
// Point feature with kind "camera".
type GeoJSON struct {
	path string

	mu      sync.Mutex
	markers []presenter.Marker
	camera  *presenter.Camera
}

// NewGeoJSON creates a surface that writes to path.
func NewGeoJSON(path string) *GeoJSON {
	return &GeoJSON{path: path}
}

// Path is the output file.
func (s *GeoJSON) Path() string {
	return s.path
}

func (s *GeoJSON) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = s.markers[:0]
}

func (s *GeoJSON) AddMarker(m presenter.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, m)
}

func (s *GeoJSON) MoveCamera(c presenter.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = &c
}

// FeatureCollection renders the buffered state.
func (s *GeoJSON) FeatureCollection() geom.GeoJSONFeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc := make(geom.GeoJSONFeatureCollection, 0, len(s.markers)+1)
	for _, m := range s.markers {
		fc = append(fc, geom.GeoJSONFeature{
			ID:       m.ID,
			Geometry: geo.Point4326(m.Latitude, m.Longitude).AsGeometry(),
			Properties: map[string]any{
				"kind":  kindMarker,
				"title": m.Title,
			},
		})
	}
	if s.camera != nil {
		fc = append(fc, geom.GeoJSONFeature{
			Geometry: geo.Point4326(s.camera.Latitude, s.camera.Longitude).AsGeometry(),
			Properties: map[string]any{
				"kind": kindCamera,
				"zoom": s.camera.Zoom,
			},
		})
	}
	return fc
}

// Flush replaces the output file atomically.
func (s *GeoJSON) Flush() error {
	data, err := json.Marshal(s.FeatureCollection())
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write GeoJSON: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
