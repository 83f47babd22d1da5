package geo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/doggo-app/locshare/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ParseTrack parses a JSON array of [lat, lon] or [lat, lon, accuracy] fixes
// into positions spaced step apart starting at start.
// Input format: "[[47.1,-117.2],[47.2,-117.3,5],...]"
func ParseTrack(input []byte, start time.Time, step time.Duration) ([]core.Position, error) {
	var coords [][]float64
	if err := json.Unmarshal(input, &coords); err != nil {
		return nil, fmt.Errorf("failed to parse track JSON: %w", err)
	}
	if len(coords) == 0 {
		return nil, fmt.Errorf("track must have at least 1 point")
	}

	track := make([]core.Position, len(coords))
	for i, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		if !ValidLatLon(c[0], c[1]) {
			return nil, fmt.Errorf("coordinate %d: %w", i, ErrInvalidCoordinates)
		}
		p := core.Position{
			Latitude:  c[0],
			Longitude: c[1],
			Time:      start.Add(time.Duration(i) * step),
		}
		if len(c) > 2 {
			p.Accuracy = c[2]
		}
		track[i] = p
	}
	return track, nil
}

// TrackLineString converts positions into a lon/lat LineString.
// Fewer than two positions yield an empty LineString.
func TrackLineString(track []core.Position) geom.LineString {
	if len(track) < 2 {
		return geom.LineString{}
	}
	flat := make([]float64, 0, len(track)*2)
	for _, p := range track {
		flat = append(flat, p.Longitude, p.Latitude)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}
