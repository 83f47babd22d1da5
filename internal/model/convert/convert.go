// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"github.com/doggo-app/locshare/internal/geo"
	"github.com/doggo-app/locshare/internal/model"
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/core"
	"gorm.io/datatypes"
)

// recordToJSON converts a record to datatypes.JSON for DB storage.
func recordToJSON(rec core.LocationRecord) datatypes.JSON {
	data, err := json.Marshal(rec)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToLocation converts the value stored at key to a GORM model.Location.
func CoreToLocation(key string, rec core.LocationRecord) model.Location {
	return model.Location{
		Key:       key,
		ActorID:   rec.ID,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Position:  geo.Point3857(rec.Latitude, rec.Longitude),
	}
}

// LocationToCore converts a GORM Location back to the stored record.
func LocationToCore(l model.Location) core.LocationRecord {
	return core.NewLocationRecord(l.ActorID, l.Latitude, l.Longitude)
}

// LocationToChild converts a GORM Location to a storage.Child.
func LocationToChild(l model.Location) storage.Child {
	return storage.Child{Key: l.Key, Record: LocationToCore(l)}
}

// CoreToHistory builds the history row for an operation on key at t.
func CoreToHistory(op, key string, rec core.LocationRecord, t time.Time) model.LocationHistory {
	return model.LocationHistory{
		Time:      t,
		Key:       key,
		Op:        op,
		ActorID:   rec.ID,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Position:  geo.Point3857(rec.Latitude, rec.Longitude),
		Payload:   recordToJSON(rec),
	}
}

// HistoryToPosition converts a history row to the fix it recorded.
func HistoryToPosition(h model.LocationHistory) core.Position {
	return core.Position{
		Latitude:  h.Latitude,
		Longitude: h.Longitude,
		Time:      h.Time,
	}
}
