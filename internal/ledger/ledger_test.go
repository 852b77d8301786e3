package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onsite-tracker-backend/internal/geo"
	"onsite-tracker-backend/internal/model"
)

// fakeStore keeps sessions and track points in memory.
type fakeStore struct {
	sessions []model.Session
	points   []model.TrackPoint
	nextID   int64
}

func (f *fakeStore) CreateSession(ctx context.Context, session *model.Session) error {
	f.nextID++
	session.ID = f.nextID
	session.CreatedAt = time.Now().UTC()
	f.sessions = append(f.sessions, *session)
	return nil
}

func (f *fakeStore) SaveSession(ctx context.Context, session *model.Session) error {
	for i := range f.sessions {
		if f.sessions[i].ID == session.ID {
			f.sessions[i] = *session
			return nil
		}
	}
	return nil
}

func (f *fakeStore) ActiveSession(ctx context.Context) (*model.Session, error) {
	for i := len(f.sessions) - 1; i >= 0; i-- {
		if f.sessions[i].ExitedAt == nil && f.sessions[i].PausedAt == nil {
			s := f.sessions[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CurrentSession(ctx context.Context) (*model.Session, error) {
	for i := len(f.sessions) - 1; i >= 0; i-- {
		if f.sessions[i].ExitedAt == nil {
			s := f.sessions[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SessionsBetween(ctx context.Context, from, to time.Time) ([]model.Session, error) {
	var out []model.Session
	for _, s := range f.sessions {
		if !s.EnteredAt.Before(from) && s.EnteredAt.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateTrackPoint(ctx context.Context, point *model.TrackPoint) error {
	f.points = append(f.points, *point)
	return nil
}

func TestStart_CreatesSessionAndAuditPoint(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	pos := &geo.Position{Point: geo.Point{Latitude: 40.4168, Longitude: -3.7038}, Accuracy: 12}
	session, err := led.Start(ctx, 1, "Office", pos, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), session.RegionID)
	assert.Equal(t, "Office", session.RegionName)
	assert.Equal(t, model.StatusActive, session.Status())
	assert.False(t, session.EnteredAt.IsZero())

	require.Len(t, store.points, 1)
	point := store.points[0]
	assert.Equal(t, model.TrackEnter, point.Kind)
	assert.Equal(t, session.ID, point.SessionID)
	require.NotNil(t, point.Latitude)
	assert.Equal(t, 40.4168, *point.Latitude)
}

func TestStart_StampsEntryAtDetectionTime(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	detected := time.Now().Add(-45 * time.Second)
	session, err := led.Start(ctx, 1, "Office", nil, detected)
	require.NoError(t, err)
	assert.True(t, session.EnteredAt.Equal(detected.UTC()),
		"entry must carry the detection time, not the call time")
}

func TestStart_RejectsWhileActiveElsewhere(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	_, err := led.Start(ctx, 1, "Office", nil, time.Time{})
	require.NoError(t, err)

	_, err = led.Start(ctx, 2, "Site", nil, time.Time{})
	var activeElsewhere *ActiveElsewhereError
	require.ErrorAs(t, err, &activeElsewhere)
	assert.Equal(t, int64(1), activeElsewhere.RegionID)
	assert.Equal(t, "Office", activeElsewhere.RegionName)
}

func TestStart_SameRegionIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	first, err := led.Start(ctx, 1, "Office", nil, time.Time{})
	require.NoError(t, err)

	second, err := led.Start(ctx, 1, "Office", nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "starting at the active region returns the existing session")
	assert.Len(t, store.sessions, 1)
}

func TestStart_PausedSessionDoesNotBlock(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	_, err := led.Start(ctx, 1, "Office", nil, time.Time{})
	require.NoError(t, err)
	_, err = led.Pause(ctx)
	require.NoError(t, err)

	// A paused session is not accruing time, so work may start elsewhere.
	session, err := led.Start(ctx, 2, "Site", nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), session.RegionID)
}

func TestPauseResume_Accumulates(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	_, err := led.Start(ctx, 1, "Office", nil, time.Time{})
	require.NoError(t, err)

	paused, err := led.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, paused.Status())

	// Pausing again is rejected, not silently ignored.
	_, err = led.Pause(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	resumed, err := led.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, resumed.Status())
	assert.Nil(t, resumed.PausedAt)

	_, err = led.Resume(ctx)
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestResume_WithoutSession(t *testing.T) {
	led := New(&fakeStore{})
	_, err := led.Resume(context.Background())
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestStop_NoOpWhenNothingOpen(t *testing.T) {
	store := &fakeStore{}
	led := New(store)

	// An exit signal after the session was already closed must not fail.
	session, err := led.Stop(context.Background(), 1, nil)
	assert.NoError(t, err)
	assert.Nil(t, session)
	assert.Empty(t, store.points)
}

func TestStop_FinalizesAndFoldsOpenPause(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	_, err := led.Start(ctx, 1, "Office", nil, time.Time{})
	require.NoError(t, err)
	_, err = led.Pause(ctx)
	require.NoError(t, err)

	session, err := led.Stop(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinalized, session.Status())
	assert.Nil(t, session.PausedAt, "stop closes an open pause marker")
	assert.False(t, session.ManuallyEdited)
}

func TestStopWithAdjustment_Backdates(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	// A session that started 40 minutes ago, stopped "10 minutes ago".
	entered := time.Now().UTC().Add(-40 * time.Minute)
	store.sessions = append(store.sessions, model.Session{ID: 1, RegionID: 1, RegionName: "Office", EnteredAt: entered})
	store.nextID = 1

	session, err := led.StopWithAdjustment(ctx, 1, -10, nil)
	require.NoError(t, err)
	assert.True(t, session.ManuallyEdited)
	assert.Equal(t, "exit adjusted by -10 minutes", session.EditReason)
	assert.InDelta(t, 30, session.DurationMinutes(time.Now().UTC()), 1)
}

func TestStopWithAdjustment_DurationFloorsAtZero(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	entered := time.Now().UTC().Add(-5 * time.Minute)
	store.sessions = append(store.sessions, model.Session{ID: 1, RegionID: 1, RegionName: "Office", EnteredAt: entered})
	store.nextID = 1

	// Backdating past the entry leaves a nonsense exit; the reported
	// duration still floors at zero.
	session, err := led.StopWithAdjustment(ctx, 1, -1000, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, session.DurationMinutes(time.Now().UTC()))
}

func TestStatsOnDay_CountsOnlyFinalized(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	exited := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	store.sessions = []model.Session{
		{ID: 1, RegionID: 1, RegionName: "Office", EnteredAt: exited.Add(-2 * time.Hour), ExitedAt: &exited},
		{ID: 2, RegionID: 1, RegionName: "Office", EnteredAt: exited.Add(30 * time.Minute)}, // still open
	}
	store.nextID = 2

	stats, err := led.StatsOnDay(ctx, day, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSessions, "open sessions do not count toward the day total")
	assert.InDelta(t, 120, stats.TotalMinutes, 1)
}

func TestSessionsOnDay_LocalMidnightBoundary(t *testing.T) {
	store := &fakeStore{}
	led := New(store)
	ctx := context.Background()

	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	day := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)
	inDay := time.Date(2026, 3, 10, 0, 30, 0, 0, loc).UTC()
	dayBefore := time.Date(2026, 3, 9, 23, 30, 0, 0, loc).UTC()

	store.sessions = []model.Session{
		{ID: 1, RegionID: 1, EnteredAt: inDay},
		{ID: 2, RegionID: 1, EnteredAt: dayBefore},
	}
	store.nextID = 2

	sessions, err := led.SessionsOnDay(ctx, day, loc)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(1), sessions[0].ID)
}
