package model

import "time"

// TrackPointKind identifies what a track point records.
type TrackPointKind string

const (
	TrackEnter  TrackPointKind = "enter"
	TrackExit   TrackPointKind = "exit"
	TrackPause  TrackPointKind = "pause"
	TrackResume TrackPointKind = "resume"
)

// TrackPoint is an audit row for a session transition, with the position
// snapshot that triggered it when one was available.
type TrackPoint struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	SessionID int64          `gorm:"index;not null"`
	RegionID  int64          `gorm:"index;not null"`
	Kind      TrackPointKind `gorm:"size:16;not null"`
	Latitude  *float64
	Longitude *float64
	Accuracy  *float64
	Automatic bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null"`
}
