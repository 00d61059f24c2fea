// README: Route value object resolved between restaurant and delivery location.
package route

import (
	"fmt"
	"time"

	"ordertrack/internal/types"
)

// Route is an ordered, road-following list of waypoints. It is immutable once fetched.
type Route struct {
	Waypoints      []types.Point `json:"waypoints"`
	DistanceMeters float64       `json:"distance_meters,omitempty"`
	Duration       time.Duration `json:"duration,omitempty"`
}

func (r Route) Len() int {
	return len(r.Waypoints)
}

// Pair keys a route by its endpoints, not by order: the same pair may repeat across orders.
type Pair struct {
	Start types.Point
	End   types.Point
}

func (p Pair) Key() string {
	return fmt.Sprintf("%s;%s", p.Start, p.End)
}
