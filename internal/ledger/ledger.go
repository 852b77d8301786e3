// Package ledger owns session records and the global invariant that at
// most one session accrues time at any moment. Every mutating operation
// re-validates that invariant against the store at call time: guards run
// earlier in the coordinator, but time passes between a guard check and
// the ledger call, so the ledger is the final authority.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"onsite-tracker-backend/internal/geo"
	"onsite-tracker-backend/internal/model"
)

// Store is the slice of persistence the ledger needs.
type Store interface {
	CreateSession(ctx context.Context, session *model.Session) error
	SaveSession(ctx context.Context, session *model.Session) error
	ActiveSession(ctx context.Context) (*model.Session, error)
	CurrentSession(ctx context.Context) (*model.Session, error)
	SessionsBetween(ctx context.Context, from, to time.Time) ([]model.Session, error)
	CreateTrackPoint(ctx context.Context, point *model.TrackPoint) error
}

var (
	// ErrNoActiveSession rejects pause when nothing is accruing time.
	ErrNoActiveSession = errors.New("no active session")

	// ErrNotPaused rejects resume when the current session is not paused.
	ErrNotPaused = errors.New("current session is not paused")
)

// ActiveElsewhereError rejects a start while another region's session is
// active. Paused and finalized sessions do not block.
type ActiveElsewhereError struct {
	RegionID   int64
	RegionName string
}

func (e *ActiveElsewhereError) Error() string {
	return fmt.Sprintf("a session is already active at %q", e.RegionName)
}

// Ledger mutates session records through the store.
type Ledger struct {
	store Store
}

// New creates a session ledger backed by the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Start creates a new session at the region. A session already active at a
// different region rejects the start; one already active at this region
// makes the call an idempotent no-op returning it. Sessions are never
// reopened: a paused or finalized session at this region does not block,
// a fresh record is created.
//
// detectedAt is the moment the entry transition was observed. A countdown
// may run between detection and this call; the session's entry timestamp
// belongs to the detection, not to the resolution. A zero detectedAt
// falls back to now.
func (l *Ledger) Start(ctx context.Context, regionID int64, regionName string, pos *geo.Position, detectedAt time.Time) (*model.Session, error) {
	active, err := l.store.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if active.RegionID != regionID {
			return nil, &ActiveElsewhereError{RegionID: active.RegionID, RegionName: active.RegionName}
		}
		log.Printf("session %d already active at region %d, not starting another", active.ID, regionID)
		return active, nil
	}

	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}
	session := &model.Session{
		RegionID:   regionID,
		RegionName: regionName,
		EnteredAt:  detectedAt.UTC(),
	}
	if err := l.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	l.track(ctx, session, model.TrackEnter, pos, true)

	log.Printf("session %d started at %q", session.ID, regionName)
	return session, nil
}

// Pause marks the active session paused, recording when the pause began.
func (l *Ledger) Pause(ctx context.Context) (*model.Session, error) {
	session, err := l.store.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Status() != model.StatusActive {
		return nil, ErrNoActiveSession
	}

	now := time.Now().UTC()
	session.PausedAt = &now
	if err := l.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	l.track(ctx, session, model.TrackPause, nil, false)

	log.Printf("session %d paused", session.ID)
	return session, nil
}

// Resume clears the pause marker, folding the elapsed pause into the
// session's accumulated paused minutes.
func (l *Ledger) Resume(ctx context.Context) (*model.Session, error) {
	session, err := l.store.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Status() != model.StatusPaused {
		return nil, ErrNotPaused
	}

	now := time.Now().UTC()
	session.PausedMinutes += elapsedMinutes(*session.PausedAt, now)
	session.PausedAt = nil
	if err := l.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	l.track(ctx, session, model.TrackResume, nil, false)

	log.Printf("session %d resumed (%d paused minutes accumulated)", session.ID, session.PausedMinutes)
	return session, nil
}

// Stop finalizes the open session at the region with exit = now. When no
// open session exists there, Stop is a no-op returning (nil, nil): exit
// signals can arrive after a session was already closed by other means.
func (l *Ledger) Stop(ctx context.Context, regionID int64, pos *geo.Position) (*model.Session, error) {
	return l.stop(ctx, regionID, 0, pos, true)
}

// StopWithAdjustment finalizes the open session with exit = now plus the
// given offset in minutes. The offset is negative for "stopped N minutes
// ago". The session is marked manually edited; duration still floors at
// zero when the adjustment exceeds the elapsed time.
func (l *Ledger) StopWithAdjustment(ctx context.Context, regionID int64, offsetMinutes int, pos *geo.Position) (*model.Session, error) {
	return l.stop(ctx, regionID, offsetMinutes, pos, false)
}

func (l *Ledger) stop(ctx context.Context, regionID int64, offsetMinutes int, pos *geo.Position, automatic bool) (*model.Session, error) {
	session, err := l.store.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil || session.RegionID != regionID {
		log.Printf("no open session at region %d, ignoring stop", regionID)
		return nil, nil
	}

	now := time.Now().UTC()
	if session.PausedAt != nil {
		session.PausedMinutes += elapsedMinutes(*session.PausedAt, now)
		session.PausedAt = nil
	}

	exit := now.Add(time.Duration(offsetMinutes) * time.Minute)
	session.ExitedAt = &exit
	if offsetMinutes != 0 {
		session.ManuallyEdited = true
		session.EditReason = fmt.Sprintf("exit adjusted by %d minutes", offsetMinutes)
	}
	if err := l.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	l.track(ctx, session, model.TrackExit, pos, automatic)

	log.Printf("session %d finalized at %q (%d minutes)", session.ID, session.RegionName, session.DurationMinutes(now))
	return session, nil
}

// ActiveSession exposes the currently accruing session, or nil.
func (l *Ledger) ActiveSession(ctx context.Context) (*model.Session, error) {
	return l.store.ActiveSession(ctx)
}

// CurrentSession exposes the newest open session (active or paused), or nil.
func (l *Ledger) CurrentSession(ctx context.Context) (*model.Session, error) {
	return l.store.CurrentSession(ctx)
}

// SessionsOnDay returns the sessions that started on the given local day.
func (l *Ledger) SessionsOnDay(ctx context.Context, day time.Time, loc *time.Location) ([]model.Session, error) {
	y, m, d := day.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return l.store.SessionsBetween(ctx, start.UTC(), start.AddDate(0, 0, 1).UTC())
}

// DayStats aggregates the finalized sessions of a local day.
type DayStats struct {
	TotalMinutes  int `json:"totalMinutes"`
	TotalSessions int `json:"totalSessions"`
}

// StatsOnDay totals the finalized sessions that started on the given day.
func (l *Ledger) StatsOnDay(ctx context.Context, day time.Time, loc *time.Location) (DayStats, error) {
	sessions, err := l.SessionsOnDay(ctx, day, loc)
	if err != nil {
		return DayStats{}, err
	}

	now := time.Now().UTC()
	var stats DayStats
	for _, s := range sessions {
		if s.Status() != model.StatusFinalized {
			continue
		}
		stats.TotalMinutes += s.DurationMinutes(now)
		stats.TotalSessions++
	}
	return stats, nil
}

// track writes an audit point. Failures degrade to a log line: the session
// mutation already committed and must not be rolled back over audit noise.
func (l *Ledger) track(ctx context.Context, session *model.Session, kind model.TrackPointKind, pos *geo.Position, automatic bool) {
	point := &model.TrackPoint{
		SessionID: session.ID,
		RegionID:  session.RegionID,
		Kind:      kind,
		Automatic: automatic,
	}
	if pos != nil {
		point.Latitude = &pos.Latitude
		point.Longitude = &pos.Longitude
		point.Accuracy = &pos.Accuracy
	}
	if err := l.store.CreateTrackPoint(ctx, point); err != nil {
		log.Printf("failed to record %s track point for session %d: %v", kind, session.ID, err)
	}
}

func elapsedMinutes(from, to time.Time) int {
	minutes := int(to.Sub(from).Round(time.Minute).Minutes())
	if minutes < 0 {
		return 0
	}
	return minutes
}
