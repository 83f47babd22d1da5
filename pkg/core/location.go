// pkg/core/location.go
package core

import (
	"fmt"
	"time"
)

// Role is the part an actor plays in a sharing session.
type Role string

const (
	// RoleWalker broadcasts its own location.
	RoleWalker Role = "walker"
	// RolePetter observes every broadcasting walker.
	RolePetter Role = "petter"
)

// LocationRecord is the value stored under an actor's key in the shared store.
type LocationRecord struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewLocationRecord builds a record for actor id at the given coordinate.
func NewLocationRecord(id string, latitude, longitude float64) LocationRecord {
	return LocationRecord{ID: id, Latitude: latitude, Longitude: longitude}
}

// SameSubject reports whether both records describe the same actor.
// Coordinates are ignored.
func (r LocationRecord) SameSubject(other LocationRecord) bool {
	return r.ID == other.ID
}

// Valid reports whether the record can be published.
func (r LocationRecord) Valid() bool {
	return r.ID != ""
}

// Label is the marker title for the record, "(lat, lon)" with two decimals.
func (r LocationRecord) Label() string {
	return FormatLabel(r.Latitude, r.Longitude)
}

// FormatLabel formats a coordinate the way markers are titled.
func FormatLabel(latitude, longitude float64) string {
	return fmt.Sprintf("(%.2f, %.2f)", latitude, longitude)
}

// Position is a single device fix.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"` // meters, 0 when unknown
	Time      time.Time `json:"time"`
}

// Record converts the fix into the record published for actor id.
func (p Position) Record(id string) LocationRecord {
	return NewLocationRecord(id, p.Latitude, p.Longitude)
}
