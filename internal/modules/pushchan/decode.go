package pushchan

import (
	"encoding/json"
	"errors"
	"strings"

	"ordertrack/internal/types"
)

var ErrMalformedMessage = errors.New("malformed push message")

const eventDriverUpdate = "DRIVER_UPDATE"

type wireFrame struct {
	Status   *string         `json:"status"`
	Event    *string         `json:"event"`
	OrderID  json.RawMessage `json:"order_id"`
	Lat      *float64        `json:"lat"`
	Lng      *float64        `json:"lng"`
	Time     *string         `json:"time"`
	Distance *string         `json:"distance"`
	Message  *string         `json:"message"`
}

// Decode parses one inbound frame. Anything that is not a JSON object matching
// {status} or {event:"DRIVER_UPDATE", ...} yields ErrMalformedMessage.
func Decode(data []byte) (Event, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, ErrMalformedMessage
	}

	if f.Status != nil && *f.Status != "" {
		return StatusEvent{Status: *f.Status}, nil
	}
	if f.Event == nil || *f.Event != eventDriverUpdate {
		return nil, ErrMalformedMessage
	}

	ev := DriverUpdateEvent{
		OrderID:      rawID(f.OrderID),
		ETAText:      f.Time,
		DistanceText: f.Distance,
		Message:      f.Message,
	}
	// A lone coordinate is not a position.
	if f.Lat != nil && f.Lng != nil {
		ev.Position = &types.Point{Lat: *f.Lat, Lng: *f.Lng}
	}
	return ev, nil
}

func rawID(raw json.RawMessage) types.ID {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	return types.ID(strings.Trim(s, `"`))
}
