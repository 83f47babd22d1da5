package geo

import (
	"errors"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Stored points are always EPSG:3857 so SQLite, which has no spatial awareness,
// and Postgres hold the same WKB. GeoJSON output stays in EPSG:4326.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ValidLatLon reports whether lat and lon are within WGS84 bounds.
func ValidLatLon(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ParseLatLon parses a "lat,lon" string such as "47.1,-117.2".
func ParseLatLon(s string) (lat, lon float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidCoordinates
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinates
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinates
	}
	if !ValidLatLon(lat, lon) {
		return 0, 0, ErrInvalidCoordinates
	}
	return lat, lon, nil
}

// Point3857 converts a WGS84 latitude/longitude to a Web Mercator point.
func Point3857(lat, lon float64) geom.Point {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(lon, lat, 0)
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}})
}

// LatLonFrom3857 converts a Web Mercator point back to latitude/longitude.
// An empty point yields ok == false.
func LatLonFrom3857(p geom.Point) (lat, lon float64, ok bool) {
	c, ok := p.Coordinates()
	if !ok {
		return 0, 0, false
	}
	f := wgs84.EPSG().Transform(3857, 4326)
	lon, lat, _ = f(c.X, c.Y, 0)
	return lat, lon, true
}

// Point4326 builds a lon/lat point for GeoJSON output.
func Point4326(lat, lon float64) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: lon, Y: lat}})
}
