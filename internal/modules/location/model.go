// README: Courier location fix as mirrored in the realtime database.
package location

import (
	"time"

	"ordertrack/internal/types"
)

// Fix is one courier location report for an order.
type Fix struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	DistanceText string  `json:"distance_text,omitempty"`
	TimeText     string  `json:"time_text,omitempty"`
	Message      string  `json:"message,omitempty"`
	// Timestamp is unix milliseconds; a fix is only re-emitted when it changes.
	Timestamp int64 `json:"timestamp"`
}

func (f Fix) Point() types.Point {
	return types.Point{Lat: f.Lat, Lng: f.Lng}
}

func (f Fix) RecordedAt() time.Time {
	return time.UnixMilli(f.Timestamp)
}
