// Package registry owns the set of monitored regions and the validation
// rules that keep them mutually exclusive. The geofence evaluator assumes
// active regions never overlap; that assumption is enforced here, at
// creation time.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"onsite-tracker-backend/internal/geo"
	"onsite-tracker-backend/internal/model"
)

// Store is the slice of persistence the registry needs.
type Store interface {
	ActiveRegions(ctx context.Context) ([]model.Region, error)
	RegionByID(ctx context.Context, id int64) (*model.Region, error)
	CreateRegion(ctx context.Context, region *model.Region) error
	SaveRegion(ctx context.Context, region *model.Region) error
	DeactivateRegion(ctx context.Context, id int64) error
}

var (
	// ErrDuplicateName rejects a proposal whose name matches an active
	// region case-insensitively.
	ErrDuplicateName = errors.New("an active region with this name already exists")

	// ErrRadiusOutOfRange rejects radii outside the supported bounds.
	ErrRadiusOutOfRange = fmt.Errorf("radius must be between %dm and %dm", model.MinRadiusMeters, model.MaxRadiusMeters)

	// ErrRegionNotFound is returned for operations on unknown region ids.
	ErrRegionNotFound = errors.New("region not found")
)

// OverlapError rejects a proposal whose coverage would intersect an
// existing active region.
type OverlapError struct {
	ConflictingRegion string
	DistanceMeters    float64
	RequiredMinimum   float64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("region overlaps %q (distance %s, minimum %s)",
		e.ConflictingRegion, geo.FormatDistance(e.DistanceMeters), geo.FormatDistance(e.RequiredMinimum))
}

// Registry validates and persists monitored regions.
type Registry struct {
	store Store
}

// New creates a region registry backed by the given store.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// Proposal carries the fields of a new region candidate.
type Proposal struct {
	Name   string
	Center geo.Point
	Radius float64
	Color  string
}

// Propose validates a candidate region against every active region and
// persists it on success. Validation errors are surfaced synchronously and
// never coerced.
func (r *Registry) Propose(ctx context.Context, p Proposal) (*model.Region, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, errors.New("region name is required")
	}

	radius := p.Radius
	if radius == 0 {
		radius = model.DefaultRadiusMeters
	}
	if radius < model.MinRadiusMeters || radius > model.MaxRadiusMeters {
		return nil, ErrRadiusOutOfRange
	}

	active, err := r.store.ActiveRegions(ctx)
	if err != nil {
		return nil, err
	}

	for _, existing := range active {
		if strings.EqualFold(existing.Name, name) {
			return nil, ErrDuplicateName
		}

		distance := geo.Distance(p.Center, existing.Center())
		required := radius + existing.Radius
		if distance < required {
			return nil, &OverlapError{
				ConflictingRegion: existing.Name,
				DistanceMeters:    distance,
				RequiredMinimum:   required,
			}
		}
	}

	region := &model.Region{
		Name:      name,
		Latitude:  p.Center.Latitude,
		Longitude: p.Center.Longitude,
		Radius:    radius,
		Color:     p.Color,
		Active:    true,
	}
	if err := r.store.CreateRegion(ctx, region); err != nil {
		return nil, err
	}

	log.Printf("region %q created (id=%d, radius=%s)", region.Name, region.ID, geo.FormatDistance(region.Radius))
	return region, nil
}

// Deactivate soft-deletes a region. Sessions referencing it keep their
// captured region name; the evaluator stops considering it immediately on
// the next region fetch.
func (r *Registry) Deactivate(ctx context.Context, id int64) error {
	if err := r.store.DeactivateRegion(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRegionNotFound
		}
		return err
	}
	log.Printf("region %d deactivated", id)
	return nil
}

// Update applies a partial update to a region and bumps its updated
// timestamp. Overlap is NOT re-validated after an edit; a radius or center
// change can introduce an overlap that only the evaluator's first-match
// rule papers over. This mirrors the behavior the rest of the system was
// built against.
func (r *Registry) Update(ctx context.Context, id int64, updates Update) (*model.Region, error) {
	region, err := r.store.RegionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if region == nil || !region.Active {
		return nil, ErrRegionNotFound
	}

	if updates.Name != nil {
		name := strings.TrimSpace(*updates.Name)
		if name == "" {
			return nil, errors.New("region name is required")
		}
		region.Name = name
	}
	if updates.Latitude != nil {
		region.Latitude = *updates.Latitude
	}
	if updates.Longitude != nil {
		region.Longitude = *updates.Longitude
	}
	if updates.Radius != nil {
		if *updates.Radius < model.MinRadiusMeters || *updates.Radius > model.MaxRadiusMeters {
			return nil, ErrRadiusOutOfRange
		}
		region.Radius = *updates.Radius
	}
	if updates.Color != nil {
		region.Color = *updates.Color
	}

	if err := r.store.SaveRegion(ctx, region); err != nil {
		return nil, err
	}
	return region, nil
}

// Update holds the optional fields of a partial region update.
type Update struct {
	Name      *string  `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Radius    *float64 `json:"radius"`
	Color     *string  `json:"color"`
}
