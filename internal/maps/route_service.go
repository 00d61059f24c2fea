package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"ordertrack/internal/modules/route"
	"ordertrack/internal/types"
)

var ErrNoRoute = errors.New("no route found")

// RouteService handles interactions with the Google Directions API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// FetchRoute returns the driving route's overview polyline as waypoints.
func (s *RouteService) FetchRoute(ctx context.Context, start, end types.Point) (route.Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      start.String(),
		Destination: end.String(),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return route.Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 {
		return route.Route{}, ErrNoRoute
	}

	best := routes[0]
	decoded, err := best.OverviewPolyline.Decode()
	if err != nil {
		return route.Route{}, fmt.Errorf("decoding polyline: %w", err)
	}
	if len(decoded) == 0 {
		return route.Route{}, ErrNoRoute
	}

	out := route.Route{Waypoints: make([]types.Point, len(decoded))}
	for i, ll := range decoded {
		out.Waypoints[i] = types.Point{Lat: ll.Lat, Lng: ll.Lng}
	}
	for _, leg := range best.Legs {
		out.DistanceMeters += float64(leg.Distance.Meters)
		out.Duration += leg.Duration
	}
	return out, nil
}
