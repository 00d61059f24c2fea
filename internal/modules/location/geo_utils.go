// README: Geographic helpers (great-circle distance, remaining route distance).
package location

import (
	"fmt"
	"math"

	"ordertrack/internal/types"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance in kilometres between two points.
func haversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RemainingMeters estimates the distance left along a route. ahead holds the waypoints not yet
// passed; pos is joined to the closest of them so a reported position off the cursor still
// yields a sensible figure.
func RemainingMeters(pos types.Point, ahead []types.Point) float64 {
	if len(ahead) == 0 {
		return 0
	}
	nearest, best := 0, math.Inf(1)
	for i, p := range ahead {
		if d := haversineKm(pos, p); d < best {
			nearest, best = i, d
		}
	}
	km := best
	for i := nearest + 1; i < len(ahead); i++ {
		km += haversineKm(ahead[i-1], ahead[i])
	}
	return km * 1000
}

// FormatDistance renders meters the way the courier app shows them ("850 m", "2.4 km").
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}
