package presenter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/doggo-app/locshare/pkg/core"
	"github.com/stretchr/testify/assert"
)

type fakeSurface struct {
	clears  int
	markers []Marker
	camera  Camera
	flushes int
	err     error
}

func (s *fakeSurface) Clear() {
	s.clears++
	s.markers = nil
}

func (s *fakeSurface) AddMarker(m Marker) { s.markers = append(s.markers, m) }

func (s *fakeSurface) MoveCamera(c Camera) { s.camera = c }

func (s *fakeSurface) Flush() error {
	s.flushes++
	return s.err
}

func TestRender_OneMarkerPerRecord(t *testing.T) {
	surface := &fakeSurface{}
	p := New(surface, 0, nil)

	records := make([]core.LocationRecord, 5)
	for i := range records {
		records[i] = core.NewLocationRecord(fmt.Sprintf("dog-%d", i), 47.1234+float64(i), -117.2)
	}
	p.Render(records)

	assert.Equal(t, 1, surface.clears)
	assert.Len(t, surface.markers, 5)
	for i, m := range surface.markers {
		assert.Equal(t, records[i].ID, m.ID)
		assert.Equal(t, fmt.Sprintf("(%.2f, -117.20)", 47.1234+float64(i)), m.Title)
	}
	assert.Equal(t, 1, surface.flushes)
}

func TestRender_FullRedraw(t *testing.T) {
	surface := &fakeSurface{}
	p := New(surface, 0, nil)

	p.Render([]core.LocationRecord{core.NewLocationRecord("A", 1, 1), core.NewLocationRecord("B", 2, 2)})
	p.Render([]core.LocationRecord{core.NewLocationRecord("B", 2, 2)})
	assert.Equal(t, 2, surface.clears)
	assert.Equal(t, []Marker{{ID: "B", Latitude: 2, Longitude: 2, Title: "(2.00, 2.00)"}}, surface.markers)

	p.Render(nil)
	assert.Empty(t, surface.markers)
}

func TestCenter(t *testing.T) {
	surface := &fakeSurface{}
	New(surface, 0, nil).Center(core.Position{Latitude: 47.1, Longitude: -117.2})
	assert.Equal(t, Camera{Latitude: 47.1, Longitude: -117.2, Zoom: DefaultZoom}, surface.camera)

	New(surface, 12, nil).Center(core.Position{Latitude: 1, Longitude: 2})
	assert.Equal(t, 12.0, surface.camera.Zoom)
}

func TestFlushErrorIsNotFatal(t *testing.T) {
	surface := &fakeSurface{err: errors.New("disk full")}
	p := New(surface, 0, nil)
	p.Render([]core.LocationRecord{core.NewLocationRecord("A", 1, 1)})
	assert.Len(t, surface.markers, 1)
}

func TestMarkerFor(t *testing.T) {
	m := MarkerFor(core.NewLocationRecord("A", 47.105, -117.2))
	assert.Equal(t, "A", m.ID)
	assert.Equal(t, core.FormatLabel(47.105, -117.2), m.Title)
}
