// README: Order aggregate and lifecycle status definitions.
package order

import (
	"time"

	"ordertrack/internal/types"
)

type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPending        Status = "PENDING"
	StatusPreparing      Status = "PREPARING"
	StatusReadyForPickup Status = "READY_FOR_PICKUP"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// Order is the tracked order. Restaurant is nil until restaurant data is known and
// Delivery is nil when the customer never supplied a drop-off location.
type Order struct {
	ID         types.ID
	Status     Status
	Restaurant *types.Point
	Delivery   *types.Point
	CreatedAt  time.Time
}

// AllowedTransitions represents the forward order flow (diagram) as code.
// Updates outside it are still accepted among non-terminal states; see Tracker.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:        {StatusPreparing, StatusCancelled},
	StatusPending:        {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReadyForPickup, StatusOutForDelivery, StatusCancelled},
	StatusReadyForPickup: {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusPending, StatusPreparing, StatusReadyForPickup,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is accepted from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ChannelState mirrors the push channel's connectivity for display.
type ChannelState string

const (
	ChannelConnecting   ChannelState = "connecting"
	ChannelOpen         ChannelState = "open"
	ChannelReconnecting ChannelState = "reconnecting"
	ChannelDown         ChannelState = "down"
	ChannelClosed       ChannelState = "closed"
)
