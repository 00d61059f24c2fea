// README: REST client for the food-delivery backend (order fetch, OTP handshake, courier location).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ordertrack/internal/modules/handover"
	"ordertrack/internal/modules/order"
	"ordertrack/internal/types"
)

var ErrUnauthenticated = errors.New("backend: unauthenticated")

// StatusError is returned for unexpected HTTP statuses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: unexpected status %d: %s", e.Code, e.Body)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client authenticating every call with the bearer token.
// A nil httpClient gets a traced default transport.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

type latestOrderResp struct {
	ID         json.RawMessage `json:"id"`
	Status     string          `json:"status"`
	Restaurant *struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"restaurant"`
	DeliveryLatitude  *float64 `json:"delivery_latitude"`
	DeliveryLongitude *float64 `json:"delivery_longitude"`
	CreatedAt         string   `json:"created_at"`
}

// LatestOrder fetches the caller's most recent order.
func (c *Client) LatestOrder(ctx context.Context) (*order.Order, error) {
	var resp latestOrderResp
	status, err := c.do(ctx, http.MethodGet, "/orders/my-latest", nil, &resp)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, order.ErrNoActiveOrder
	default:
		return nil, &StatusError{Code: status}
	}

	id := rawID(resp.ID)
	if id == "" {
		return nil, order.ErrNoActiveOrder
	}
	o := &order.Order{
		ID:        id,
		Status:    order.Status(resp.Status),
		CreatedAt: parseTime(resp.CreatedAt),
	}
	if r := resp.Restaurant; r != nil && r.Latitude != nil && r.Longitude != nil {
		o.Restaurant = &types.Point{Lat: *r.Latitude, Lng: *r.Longitude}
	}
	// The backend stores 0 for "not supplied".
	if resp.DeliveryLatitude != nil && resp.DeliveryLongitude != nil &&
		(*resp.DeliveryLatitude != 0 || *resp.DeliveryLongitude != 0) {
		o.Delivery = &types.Point{Lat: *resp.DeliveryLatitude, Lng: *resp.DeliveryLongitude}
	}
	return o, nil
}

// GenerateOTP asks the server to issue a handover code. The returned code is empty when the
// server delivered it out-of-band.
func (c *Client) GenerateOTP(ctx context.Context, id types.ID) (string, error) {
	var resp struct {
		OTP string `json:"otp"`
	}
	status, err := c.do(ctx, http.MethodPost, "/orders/"+string(id)+"/generate-otp", nil, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &StatusError{Code: status}
	}
	return resp.OTP, nil
}

// CompleteDelivery submits the handover code. A rejected code yields handover.ErrCodeRejected.
func (c *Client) CompleteDelivery(ctx context.Context, id types.ID, otp string) error {
	status, err := c.do(ctx, http.MethodPost, "/orders/"+string(id)+"/complete-delivery", map[string]string{"otp": otp}, nil)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusOK:
		return nil
	case status >= 500:
		return &StatusError{Code: status}
	default:
		return handover.ErrCodeRejected
	}
}

// DriverLocation is the courier-side update relayed to customers over the push channel.
type DriverLocation struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	DistanceText string  `json:"distance_text"`
	TimeText     string  `json:"time_text"`
	Message      string  `json:"message"`
}

func (c *Client) ShareDriverLocation(ctx context.Context, id types.ID, loc DriverLocation) error {
	status, err := c.do(ctx, http.MethodPost, "/orders/"+string(id)+"/driver-location", loc, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &StatusError{Code: status}
	}
	return nil
}

// do performs the request; 401 maps to ErrUnauthenticated and 2xx bodies decode into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		return res.StatusCode, ErrUnauthenticated
	}
	if out != nil && res.StatusCode >= 200 && res.StatusCode < 300 {
		data, err := io.ReadAll(res.Body)
		if err != nil {
			return res.StatusCode, err
		}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return res.StatusCode, fmt.Errorf("decoding %s: %w", path, err)
			}
		}
	}
	return res.StatusCode, nil
}

func rawID(raw json.RawMessage) types.ID {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	return types.ID(strings.Trim(s, `"`))
}

func parseTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
