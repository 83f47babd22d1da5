package storage

import "github.com/doggo-app/locshare/pkg/core"

// EventKind tags a child notification.
type EventKind int

const (
	EventAdded EventKind = iota + 1
	EventChanged
	EventRemoved
	EventMoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventChanged:
		return "changed"
	case EventRemoved:
		return "removed"
	case EventMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// Event is a single child notification. Removed events carry the last value.
type Event struct {
	Kind   EventKind
	Key    string
	Record core.LocationRecord
}
