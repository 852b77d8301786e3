package geo

import (
	"fmt"
	"math"
	"time"
)

// earthRadiusMeters is the mean Earth radius used for Haversine distances.
const earthRadiusMeters = 6371000

// Point is a coordinate pair in signed decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Position is a sampled location with metadata from the position source.
type Position struct {
	Point
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

func toRadians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}

// Distance computes the great-circle distance between two points in meters
// using the Haversine formula.
func Distance(p1, p2 Point) float64 {
	lat1 := toRadians(p1.Latitude)
	lat2 := toRadians(p2.Latitude)
	deltaLat := toRadians(p2.Latitude - p1.Latitude)
	deltaLon := toRadians(p2.Longitude - p1.Longitude)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Contains reports whether a point lies within a circle of radiusMeters
// around center.
func Contains(point, center Point, radiusMeters float64) bool {
	return Distance(point, center) <= radiusMeters
}

// Bearing computes the initial bearing from one point to another in degrees,
// normalized to [0, 360) where 0 is north.
func Bearing(from, to Point) float64 {
	lat1 := toRadians(from.Latitude)
	lat2 := toRadians(to.Latitude)
	deltaLon := toRadians(to.Longitude - from.Longitude)

	y := math.Sin(deltaLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(deltaLon)

	bearing := math.Atan2(y, x) * (180 / math.Pi)
	return math.Mod(bearing+360, 360)
}

// Circle is anything with a circular coverage area.
type Circle interface {
	Center() Point
	RadiusMeters() float64
}

// Nearest returns the index of the circle closest to point and its distance.
// Returns -1 when the slice is empty.
func Nearest[T Circle](point Point, circles []T) (int, float64) {
	nearest := -1
	best := math.Inf(1)
	for i, c := range circles {
		d := Distance(point, c.Center())
		if d < best {
			nearest = i
			best = d
		}
	}
	return nearest, best
}

// FormatDistance renders a distance in meters for log and error messages.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0fm", meters)
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}
