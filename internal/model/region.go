package model

import (
	"time"

	"onsite-tracker-backend/internal/geo"
)

// Radius bounds for a monitored region, in meters.
const (
	MinRadiusMeters     = 10
	MaxRadiusMeters     = 2000
	DefaultRadiusMeters = 50
)

// Region represents a monitored circular geofence around a work site.
// Regions are soft-deleted: the Active flag is cleared instead of removing
// the row, so historical sessions keep a valid reference.
type Region struct {
	ID        int64   `gorm:"primaryKey" json:"id"`
	Name      string  `gorm:"size:128;not null" json:"name"`
	Latitude  float64 `gorm:"not null" json:"latitude"`
	Longitude float64 `gorm:"not null" json:"longitude"`
	Radius    float64 `gorm:"not null" json:"radius"`
	Color     string  `gorm:"size:16" json:"color"`
	Active    bool    `gorm:"not null;default:true;index" json:"active"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// Center returns the region's center coordinate.
func (r Region) Center() geo.Point {
	return geo.Point{Latitude: r.Latitude, Longitude: r.Longitude}
}

// RadiusMeters returns the region's radius in meters.
func (r Region) RadiusMeters() float64 {
	return r.Radius
}

// Contains reports whether the given point lies inside the region.
func (r Region) Contains(p geo.Point) bool {
	return geo.Contains(p, r.Center(), r.Radius)
}
