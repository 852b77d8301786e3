package model

import (
	"log"
	"time"
)

// SessionStatus is the derived lifecycle state of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusFinalized SessionStatus = "finalized"
)

// Session represents a period of presence at a region. Sessions are an audit
// trail and are never physically deleted. The region name is captured at
// creation so the record survives region deactivation.
type Session struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RegionID       int64      `gorm:"index;not null" json:"regionId"`
	RegionName     string     `gorm:"size:128;not null" json:"regionName"`
	EnteredAt      time.Time  `gorm:"not null;index" json:"enteredAt"`
	ExitedAt       *time.Time `json:"exitedAt"`
	PausedAt       *time.Time `json:"pausedAt"`
	PausedMinutes  int        `gorm:"not null;default:0" json:"pausedMinutes"`
	ManuallyEdited bool       `gorm:"not null;default:false" json:"manuallyEdited"`
	EditReason     string     `gorm:"size:256" json:"editReason,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

// Status derives the lifecycle state from the exit and pause markers.
func (s *Session) Status() SessionStatus {
	switch {
	case s.ExitedAt != nil:
		return StatusFinalized
	case s.PausedAt != nil:
		return StatusPaused
	default:
		return StatusActive
	}
}

// DurationMinutes computes accrued minutes as of now, excluding paused time.
// A zero or inverted entry timestamp yields 0 and is logged as an anomaly;
// the result is always a non-negative number.
func (s *Session) DurationMinutes(now time.Time) int {
	if s.EnteredAt.IsZero() {
		log.Printf("anomaly: session %d has no entry timestamp, reporting zero duration", s.ID)
		return 0
	}

	end := now
	if s.ExitedAt != nil {
		end = *s.ExitedAt
	}

	paused := s.PausedMinutes
	if s.PausedAt != nil && s.ExitedAt == nil {
		// An open pause marker excludes the in-flight pause as well.
		paused += int(end.Sub(*s.PausedAt).Round(time.Minute).Minutes())
	}

	minutes := int(end.Sub(s.EnteredAt).Round(time.Minute).Minutes()) - paused
	if minutes < 0 {
		return 0
	}
	return minutes
}
