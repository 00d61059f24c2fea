// README: View is the explicit UI state rendered by the tracking surface; the loop publishes a fresh copy after each change.
package session

import (
	"reflect"
	"sync"
	"time"

	"ordertrack/internal/modules/animation"
	"ordertrack/internal/modules/handover"
	"ordertrack/internal/modules/order"
	"ordertrack/internal/types"
)

type View struct {
	SessionID     string             `json:"session_id"`
	OrderID       types.ID           `json:"order_id,omitempty"`
	Status        order.Status       `json:"status,omitempty"`
	Banner        string             `json:"banner,omitempty"`
	NoActiveOrder bool               `json:"no_active_order"`
	Ended         bool               `json:"ended"`
	Channel       order.ChannelState `json:"channel"`

	Marker        animation.State     `json:"marker"`
	Driver        *animation.Position `json:"driver,omitempty"`
	Cursor        int                 `json:"cursor"`
	Route         []types.Point       `json:"route,omitempty"`
	RouteDegraded bool                `json:"route_degraded"`

	ETAText         string   `json:"eta_text,omitempty"`
	DistanceText    string   `json:"distance_text,omitempty"`
	Message         string   `json:"message,omitempty"`
	RemainingMeters *float64 `json:"remaining_meters,omitempty"`
	RemainingText   string   `json:"remaining_text,omitempty"`

	Handover HandoverView `json:"handover"`

	UpdatedAt time.Time `json:"updated_at"`
}

type HandoverView struct {
	State      handover.State `json:"state"`
	PromptOpen bool           `json:"prompt_open"`
	// Code is only set for the on-screen variant.
	Code              string `json:"code,omitempty"`
	DeliveredToClient bool   `json:"delivered_to_client"`
	Attempts          int    `json:"attempts"`
	LockedOut         bool   `json:"locked_out"`
	Error             string `json:"error,omitempty"`
	CanRetryIssue     bool   `json:"can_retry_issue"`
}

// bannerFor returns the status banner shown to the customer.
func bannerFor(s order.Status) string {
	switch s {
	case order.StatusCreated, order.StatusPending:
		return "Order placed. Waiting for the restaurant to accept."
	case order.StatusPreparing:
		return "Order accepted! The restaurant is preparing your food."
	case order.StatusReadyForPickup:
		return "Your food is ready and waiting for the driver."
	case order.StatusOutForDelivery:
		return "Food on the way! Your driver has left the restaurant."
	case order.StatusDelivered:
		return "Delivered! Enjoy your meal."
	case order.StatusCancelled:
		return "This order was cancelled."
	}
	return ""
}

// board holds the latest published View and fans change notifications out to subscribers.
type board struct {
	mu   sync.RWMutex
	view View
	next int
	subs map[int]chan struct{}
}

func newBoard(v View) *board {
	return &board{view: v, subs: make(map[int]chan struct{})}
}

func (b *board) get() View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.view
}

// set stores v and notifies subscribers when anything besides the timestamp changed.
func (b *board) set(v View) {
	b.mu.Lock()
	prev := b.view
	prev.UpdatedAt = v.UpdatedAt
	if reflect.DeepEqual(prev, v) {
		b.mu.Unlock()
		return
	}
	b.view = v
	subs := make([]chan struct{}, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (b *board) subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan struct{}, 1)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}
