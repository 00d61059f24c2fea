// README: Order state tracker holds the authoritative lifecycle status of the tracked order.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrNoActiveOrder  = errors.New("no active order")
	ErrUnknownStatus  = errors.New("unknown order status")
	ErrNotInitialized = errors.New("tracker not initialized")
)

// Source fetches the customer's most recent order.
type Source interface {
	LatestOrder(ctx context.Context) (*Order, error)
}

// Listener is notified after each accepted transition.
type Listener func(from, to Status)

// Tracker is owned by a single event loop; it is not safe for concurrent use.
type Tracker struct {
	source    Source
	log       *slog.Logger
	order     *Order
	channel   ChannelState
	listeners []Listener
}

func NewTracker(source Source, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{source: source, log: logger, channel: ChannelConnecting}
}

// Initialize seeds the tracker from the latest order. It fails with ErrNoActiveOrder
// when the customer has none.
func (t *Tracker) Initialize(ctx context.Context) (Order, error) {
	o, err := t.source.LatestOrder(ctx)
	if err != nil {
		if errors.Is(err, ErrNoActiveOrder) {
			return Order{}, ErrNoActiveOrder
		}
		return Order{}, fmt.Errorf("fetching latest order: %w", err)
	}
	if o == nil || o.ID == "" {
		return Order{}, ErrNoActiveOrder
	}
	if !o.Status.Valid() {
		t.log.Warn("latest order has unrecognised status", slog.String("order_id", string(o.ID)), slog.String("status", string(o.Status)))
	}
	cp := *o
	t.order = &cp
	return cp, nil
}

func (t *Tracker) Subscribe(l Listener) {
	t.listeners = append(t.listeners, l)
}

// Order returns a copy of the tracked order.
func (t *Tracker) Order() (Order, bool) {
	if t.order == nil {
		return Order{}, false
	}
	return *t.order, true
}

func (t *Tracker) Status() Status {
	if t.order == nil {
		return ""
	}
	return t.order.Status
}

func (t *Tracker) Terminal() bool {
	return t.order != nil && t.order.Status.Terminal()
}

// ApplyStatusUpdate applies a pushed status. Terminal states are sticky; among non-terminal
// states the last write wins, so regressions are accepted. It reports whether the status changed.
func (t *Tracker) ApplyStatusUpdate(to Status) (bool, error) {
	if t.order == nil {
		return false, ErrNotInitialized
	}
	if !to.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	from := t.order.Status
	if from.Terminal() {
		t.log.Debug("ignoring status update after terminal state",
			slog.String("order_id", string(t.order.ID)), slog.String("status", string(from)), slog.String("update", string(to)))
		return false, nil
	}
	if from == to {
		return false, nil
	}
	if !CanTransition(from, to) {
		t.log.Info("accepting out-of-order status update",
			slog.String("order_id", string(t.order.ID)), slog.String("from", string(from)), slog.String("to", string(to)))
	}
	t.order.Status = to
	for _, l := range t.listeners {
		l(from, to)
	}
	return true, nil
}

// ForceDelivered completes the order locally after a confirmed handover, ahead of any
// push confirmation.
func (t *Tracker) ForceDelivered() bool {
	ok, _ := t.ApplyStatusUpdate(StatusDelivered)
	return ok
}

func (t *Tracker) SetChannelState(s ChannelState) {
	t.channel = s
}

func (t *Tracker) ChannelState() ChannelState {
	return t.channel
}
