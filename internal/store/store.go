package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"onsite-tracker-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// Regions
	ActiveRegions(ctx context.Context) ([]model.Region, error)
	RegionByID(ctx context.Context, id int64) (*model.Region, error)
	CreateRegion(ctx context.Context, region *model.Region) error
	SaveRegion(ctx context.Context, region *model.Region) error
	DeactivateRegion(ctx context.Context, id int64) error

	// Sessions
	CreateSession(ctx context.Context, session *model.Session) error
	SaveSession(ctx context.Context, session *model.Session) error
	ActiveSession(ctx context.Context) (*model.Session, error)
	CurrentSession(ctx context.Context) (*model.Session, error)
	SessionsBetween(ctx context.Context, from, to time.Time) ([]model.Session, error)
	CreateTrackPoint(ctx context.Context, point *model.TrackPoint) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for collaborators that manage their
// own queries (subscription handlers, notification pool).
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// ActiveRegions returns all regions that are still monitored, in primary-key
// order. Iteration order matters: the evaluator's multi-containment
// tie-break picks the first match.
func (s *gormStore) ActiveRegions(ctx context.Context) ([]model.Region, error) {
	var regions []model.Region
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&regions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch active regions: %w", err)
	}
	return regions, nil
}

func (s *gormStore) RegionByID(ctx context.Context, id int64) (*model.Region, error) {
	var region model.Region
	err := s.db.WithContext(ctx).First(&region, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch region %d: %w", id, err)
	}
	return &region, nil
}

func (s *gormStore) CreateRegion(ctx context.Context, region *model.Region) error {
	if err := s.db.WithContext(ctx).Create(region).Error; err != nil {
		return fmt.Errorf("failed to create region %q: %w", region.Name, err)
	}
	return nil
}

func (s *gormStore) SaveRegion(ctx context.Context, region *model.Region) error {
	if err := s.db.WithContext(ctx).Save(region).Error; err != nil {
		return fmt.Errorf("failed to save region %d: %w", region.ID, err)
	}
	return nil
}

// DeactivateRegion soft-deletes a region. Sessions referencing it are left
// untouched.
func (s *gormStore) DeactivateRegion(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Model(&model.Region{}).Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate region %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *gormStore) CreateSession(ctx context.Context, session *model.Session) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session at region %d: %w", session.RegionID, err)
	}
	return nil
}

func (s *gormStore) SaveSession(ctx context.Context, session *model.Session) error {
	if err := s.db.WithContext(ctx).Save(session).Error; err != nil {
		return fmt.Errorf("failed to save session %d: %w", session.ID, err)
	}
	return nil
}

// ActiveSession returns the session that is currently accruing time, or nil.
// Paused sessions do not count.
func (s *gormStore) ActiveSession(ctx context.Context) (*model.Session, error) {
	var session model.Session
	err := s.db.WithContext(ctx).
		Where("exited_at IS NULL AND paused_at IS NULL").
		Order("entered_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active session: %w", err)
	}
	return &session, nil
}

// CurrentSession returns the newest open session regardless of pause state,
// or nil when everything is finalized.
func (s *gormStore) CurrentSession(ctx context.Context) (*model.Session, error) {
	var session model.Session
	err := s.db.WithContext(ctx).
		Where("exited_at IS NULL").
		Order("entered_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current session: %w", err)
	}
	return &session, nil
}

func (s *gormStore) SessionsBetween(ctx context.Context, from, to time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := s.db.WithContext(ctx).
		Where("entered_at >= ? AND entered_at < ?", from, to).
		Order("entered_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions between %s and %s: %w", from, to, err)
	}
	return sessions, nil
}

func (s *gormStore) CreateTrackPoint(ctx context.Context, point *model.TrackPoint) error {
	if err := s.db.WithContext(ctx).Create(point).Error; err != nil {
		return fmt.Errorf("failed to create track point for session %d: %w", point.SessionID, err)
	}
	return nil
}
