// README: Position animator walks a cursor along the route on a fixed cadence and fires arrival once per run.
package animation

import (
	"log/slog"

	"ordertrack/internal/metrics"
	"ordertrack/internal/modules/order"
	"ordertrack/internal/modules/route"
	"ordertrack/internal/types"
)

// Timer is the repeating cadence driving Tick. The owner delivers ticks; the
// animator only decides when the cadence runs.
type Timer interface {
	Start()
	Stop()
}

type Listener func(from, to State)

// Animator is owned by a single event loop; it is not safe for concurrent use.
type Animator struct {
	log   *slog.Logger
	timer Timer

	state    State
	status   order.Status
	origin   *types.Point
	dest     *types.Point
	route    *route.Route
	degraded bool
	cursor   int
	reported *types.Point
	// arrivalFired guards the arrival callback for the current run.
	arrivalFired bool

	onArrive  func()
	listeners []Listener
}

func NewAnimator(timer Timer, logger *slog.Logger) *Animator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Animator{log: logger, timer: timer, state: StateParked}
}

// OnArrive registers the callback fired on the IN_TRANSIT -> ARRIVED edge.
func (a *Animator) OnArrive(fn func()) { a.onArrive = fn }

func (a *Animator) Subscribe(l Listener) { a.listeners = append(a.listeners, l) }

func (a *Animator) SetEndpoints(origin, dest *types.Point) {
	a.origin, a.dest = origin, dest
}

// SetRoute installs a resolved route and starts the run if the order is already out for delivery.
func (a *Animator) SetRoute(r route.Route) {
	if r.Len() == 0 {
		a.SetRouteUnavailable()
		return
	}
	a.route = &r
	a.degraded = false
	if a.status == order.StatusOutForDelivery && a.state == StateParked {
		a.startRun()
	}
}

// SetRouteUnavailable puts the animator in degraded mode: the marker stays parked and
// arrival is never detected.
func (a *Animator) SetRouteUnavailable() {
	if a.route == nil {
		a.degraded = true
	}
}

// OnStatus reacts to an order status change.
func (a *Animator) OnStatus(s order.Status) {
	a.status = s
	switch s {
	case order.StatusDelivered:
		a.timer.Stop()
		a.transition(StateAtDestination)
	case order.StatusOutForDelivery:
		if a.state == StateParked && a.route != nil {
			a.startRun()
		}
	default:
		if a.state == StateAtDestination {
			return
		}
		a.park()
	}
}

// Tick advances the cursor one waypoint. Ticks outside IN_TRANSIT are ignored.
func (a *Animator) Tick() {
	if a.state != StateInTransit {
		return
	}
	if a.cursor < a.route.Len()-1 {
		a.cursor++
	}
	if a.cursor >= a.route.Len()-1 {
		a.arrive()
	}
}

// Report records a courier-reported position. It takes display precedence over the
// simulated cursor for the rest of the session but never affects arrival detection.
func (a *Animator) Report(p types.Point) {
	a.reported = &p
}

// Position returns the position to display, if any is known.
func (a *Animator) Position() (Position, bool) {
	switch a.state {
	case StateAtDestination:
		if a.dest != nil {
			return Position{Point: *a.dest, Source: SourceSimulated}, true
		}
		if a.route != nil {
			return Position{Point: a.route.Waypoints[a.route.Len()-1], Source: SourceSimulated}, true
		}
	case StateInTransit, StateArrived:
		if a.reported != nil {
			return Position{Point: *a.reported, Source: SourceReported}, true
		}
		return Position{Point: a.route.Waypoints[a.cursor], Source: SourceSimulated}, true
	case StateParked:
		if a.origin != nil {
			return Position{Point: *a.origin, Source: SourceSimulated}, true
		}
	}
	return Position{}, false
}

// Remaining returns the waypoints still ahead of the cursor, including the current one.
func (a *Animator) Remaining() []types.Point {
	if a.route == nil || a.state == StateAtDestination {
		return nil
	}
	return a.route.Waypoints[a.cursor:]
}

func (a *Animator) State() State { return a.state }

func (a *Animator) Cursor() int { return a.cursor }

// Running reports whether the cadence should be delivering ticks.
func (a *Animator) Running() bool { return a.state == StateInTransit }

func (a *Animator) Degraded() bool { return a.degraded }

func (a *Animator) HasRoute() bool { return a.route != nil }

func (a *Animator) Route() []types.Point {
	if a.route == nil {
		return nil
	}
	return a.route.Waypoints
}

func (a *Animator) startRun() {
	a.cursor = 0
	a.arrivalFired = false
	a.transition(StateInTransit)
	if a.route.Len() == 1 {
		a.arrive()
		return
	}
	a.timer.Start()
}

func (a *Animator) arrive() {
	a.timer.Stop()
	a.transition(StateArrived)
	if a.arrivalFired {
		return
	}
	a.arrivalFired = true
	metrics.ArrivalsTotal.Inc()
	if a.onArrive != nil {
		a.onArrive()
	}
}

func (a *Animator) park() {
	a.timer.Stop()
	a.cursor = 0
	a.arrivalFired = false
	a.transition(StateParked)
}

func (a *Animator) transition(to State) {
	from := a.state
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		a.log.Warn("rejecting animator transition", slog.String("from", string(from)), slog.String("to", string(to)))
		return
	}
	a.state = to
	a.log.Debug("animator transition", slog.String("from", string(from)), slog.String("to", string(to)), slog.Int("cursor", a.cursor))
	for _, l := range a.listeners {
		l(from, to)
	}
}
