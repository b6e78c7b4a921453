package lifecycle

import (
	"math"
	"pipi/backend/internal/models"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a, b models.Coordinates) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Near keeps the activities within radiusMeters of center.
func Near(list []models.Activity, center models.Coordinates, radiusMeters float64) []models.Activity {
	out := make([]models.Activity, 0, len(list))
	for _, a := range list {
		if DistanceMeters(center, a.Coordinates) <= radiusMeters {
			out = append(out, a)
		}
	}
	return out
}
