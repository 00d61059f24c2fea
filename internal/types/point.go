// README: Common value objects shared across modules.
package types

import "fmt"

// ID identifies an order. The backend uses integers; the client keeps it opaque.
type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
