package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&StoreInfo{},
	&Location{},
	&LocationHistory{},
}

// History operations recorded in LocationHistory.Op
const (
	OpSet    = "set"
	OpDelete = "delete"
)

////////////////////////
// SYSTEM MODELS
////////////////////////

// StoreInfo describes the store instance. One row, created on first setup.
type StoreInfo struct {
	gorm.Model
	Name        string `json:"name" gorm:"size:127"`
	ChildPrefix string `json:"childPrefix" gorm:"size:127"`
}

func (*StoreInfo) TableName() string {
	return "store_infos"
}

////////////////////////
// LOCATION MODELS
////////////////////////

// Location is the current value stored at a child key.
type Location struct {
	Key       string     `json:"key" gorm:"primaryKey;size:191"`
	ActorID   string     `json:"id" gorm:"size:127;index:idx_location_actor_id"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Position  geom.Point `json:"-"` // EPSG:3857
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"index:idx_location_updated_at"`
}

func (*Location) TableName() string {
	return "locations"
}

// LocationHistory is an append-only log of every write to a child key.
type LocationHistory struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement"`
	Time      time.Time      `json:"time" gorm:"index:idx_location_history_time"`
	Key       string         `json:"key" gorm:"size:191;index:idx_location_history_key"`
	Op        string         `json:"op" gorm:"size:16"`
	ActorID   string         `json:"actorId" gorm:"size:127"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Position  geom.Point     `json:"-"` // EPSG:3857
	Payload   datatypes.JSON `json:"payload"`
}

func (*LocationHistory) TableName() string {
	return "location_histories"
}
