package subscriber

import (
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/core"
)

// ObservationSet is the locally materialized view of every published record.
// It is not safe for concurrent use; the Subscriber owns it on one goroutine.
type ObservationSet struct {
	records []core.LocationRecord
}

// NewObservationSet creates an empty set.
func NewObservationSet() *ObservationSet {
	return &ObservationSet{}
}

// Add inserts rec.
func (s *ObservationSet) Add(rec core.LocationRecord) {
	s.records = append(s.records, rec)
}

// Replace removes every record with the same id as rec, then adds rec. An
// unknown id is simply inserted.
func (s *ObservationSet) Replace(rec core.LocationRecord) {
	s.Remove(rec.ID)
	s.Add(rec)
}

// Remove drops every record with id.
func (s *ObservationSet) Remove(id string) {
	kept := s.records[:0]
	for _, r := range s.records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	clear(s.records[len(kept):])
	s.records = kept
}

// Records returns a copy of the current records.
func (s *ObservationSet) Records() []core.LocationRecord {
	out := make([]core.LocationRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len is the number of records held.
func (s *ObservationSet) Len() int {
	return len(s.records)
}

// Count is the number of records with id.
func (s *ObservationSet) Count(id string) int {
	n := 0
	for _, r := range s.records {
		if r.ID == id {
			n++
		}
	}
	return n
}

// Reset empties the set.
func (s *ObservationSet) Reset() {
	s.records = nil
}

// Apply folds one store event into the set and reports whether it changed
// anything worth redrawing. Moved events are ignored.
func (s *ObservationSet) Apply(e storage.Event) bool {
	switch e.Kind {
	case storage.EventAdded:
		s.Add(e.Record)
	case storage.EventChanged:
		s.Replace(e.Record)
	case storage.EventRemoved:
		s.Remove(e.Record.ID)
	default:
		return false
	}
	return true
}
