package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ordertrack/internal/modules/route"
	"ordertrack/internal/types"
)

// OSRMService resolves driving routes from an OSRM server.
type OSRMService struct {
	baseURL string
	http    *http.Client
}

func NewOSRMService(baseURL string, httpClient *http.Client) *OSRMService {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   15 * time.Second,
		}
	}
	return &OSRMService{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// FetchRoute queries /route/v1/driving. OSRM speaks lon,lat; waypoints come back as lat,lng.
func (s *OSRMService) FetchRoute(ctx context.Context, start, end types.Point) (route.Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		s.baseURL, start.Lng, start.Lat, end.Lng, end.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return route.Route{}, err
	}
	res, err := s.http.Do(req)
	if err != nil {
		return route.Route{}, fmt.Errorf("osrm request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return route.Route{}, fmt.Errorf("osrm status %d", res.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return route.Route{}, fmt.Errorf("decoding osrm response: %w", err)
	}
	if body.Code != "" && body.Code != "Ok" {
		return route.Route{}, fmt.Errorf("osrm code %s: %w", body.Code, ErrNoRoute)
	}
	if len(body.Routes) == 0 {
		return route.Route{}, ErrNoRoute
	}

	best := body.Routes[0]
	out := route.Route{
		DistanceMeters: best.Distance,
		Duration:       time.Duration(best.Duration * float64(time.Second)),
	}
	for _, c := range best.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		out.Waypoints = append(out.Waypoints, types.Point{Lat: c[1], Lng: c[0]})
	}
	if len(out.Waypoints) == 0 {
		return route.Route{}, ErrNoRoute
	}
	return out, nil
}
