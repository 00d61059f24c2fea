package animation

import (
	"testing"

	"ordertrack/internal/modules/order"
	"ordertrack/internal/modules/route"
	"ordertrack/internal/types"
)

type fakeTimer struct {
	running bool
	starts  int
	stops   int
}

func (f *fakeTimer) Start() { f.running = true; f.starts++ }
func (f *fakeTimer) Stop()  { f.running = false; f.stops++ }

func diagonal(n int) route.Route {
	r := route.Route{}
	for i := 0; i < n; i++ {
		r.Waypoints = append(r.Waypoints, types.Point{Lat: float64(i), Lng: float64(i)})
	}
	return r
}

func newAnimator(t *testing.T) (*Animator, *fakeTimer, *int) {
	t.Helper()
	timer := &fakeTimer{}
	a := NewAnimator(timer, nil)
	a.SetEndpoints(&types.Point{Lat: 0, Lng: 0}, &types.Point{Lat: 4.5, Lng: 4.5})
	arrivals := 0
	a.OnArrive(func() { arrivals++ })
	return a, timer, &arrivals
}

func TestInitialStateParkedAtOrigin(t *testing.T) {
	a, timer, _ := newAnimator(t)
	a.OnStatus(order.StatusPreparing)
	if a.State() != StateParked {
		t.Fatalf("state = %s, want PARKED_AT_ORIGIN", a.State())
	}
	pos, ok := a.Position()
	if !ok || pos.Point != (types.Point{}) {
		t.Fatalf("position = %+v, want origin", pos)
	}
	if timer.running {
		t.Fatal("timer must not run while parked")
	}
}

// TestArrivalAfterNMinusOneTicks covers a five-waypoint diagonal route.
func TestArrivalAfterNMinusOneTicks(t *testing.T) {
	a, timer, arrivals := newAnimator(t)
	a.SetRoute(diagonal(5))
	a.OnStatus(order.StatusOutForDelivery)
	if a.State() != StateInTransit || !timer.running {
		t.Fatalf("expected IN_TRANSIT with running timer, got %s running=%v", a.State(), timer.running)
	}

	for i := 1; i <= 3; i++ {
		a.Tick()
		if a.State() != StateInTransit {
			t.Fatalf("arrived early after %d ticks", i)
		}
	}
	a.Tick()
	if a.State() != StateArrived {
		t.Fatalf("state = %s after 4 ticks, want ARRIVED", a.State())
	}
	pos, _ := a.Position()
	if pos.Point != (types.Point{Lat: 4, Lng: 4}) || pos.Source != SourceSimulated {
		t.Fatalf("position = %+v, want simulated (4,4)", pos)
	}
	if timer.running {
		t.Fatal("timer must be cancelled on arrival")
	}

	for i := 0; i < 10; i++ {
		a.Tick()
	}
	a.OnStatus(order.StatusOutForDelivery)
	if *arrivals != 1 {
		t.Fatalf("arrival fired %d times, want 1", *arrivals)
	}
}

func TestArrivalTickCountAcrossLengths(t *testing.T) {
	for n := 2; n <= 12; n++ {
		a, _, arrivals := newAnimator(t)
		a.SetRoute(diagonal(n))
		a.OnStatus(order.StatusOutForDelivery)
		ticks := 0
		for a.State() == StateInTransit {
			a.Tick()
			ticks++
		}
		if ticks != n-1 {
			t.Errorf("n=%d: arrived after %d ticks, want %d", n, ticks, n-1)
		}
		if *arrivals != 1 {
			t.Errorf("n=%d: %d arrivals", n, *arrivals)
		}
	}
}

func TestSingleWaypointArrivesImmediately(t *testing.T) {
	a, timer, arrivals := newAnimator(t)
	a.SetRoute(diagonal(1))
	a.OnStatus(order.StatusOutForDelivery)
	if a.State() != StateArrived || *arrivals != 1 {
		t.Fatalf("state = %s arrivals = %d", a.State(), *arrivals)
	}
	if timer.running {
		t.Fatal("timer left running")
	}
}

func TestReenteringOutForDeliveryRestartsCursor(t *testing.T) {
	a, timer, arrivals := newAnimator(t)
	a.SetRoute(diagonal(5))

	for run := 0; run < 3; run++ {
		a.OnStatus(order.StatusOutForDelivery)
		if a.Cursor() != 0 {
			t.Fatalf("run %d: cursor = %d at start, want 0", run, a.Cursor())
		}
		a.Tick()
		a.Tick()
		if a.Cursor() != 2 {
			t.Fatalf("run %d: cursor = %d, want 2", run, a.Cursor())
		}
		a.OnStatus(order.StatusPreparing)
		if a.State() != StateParked || a.Cursor() != 0 || timer.running {
			t.Fatalf("run %d: expected parked reset, got %s cursor=%d running=%v", run, a.State(), a.Cursor(), timer.running)
		}
	}
	if *arrivals != 0 {
		t.Fatalf("unexpected arrivals: %d", *arrivals)
	}

	a.OnStatus(order.StatusOutForDelivery)
	for i := 0; i < 4; i++ {
		a.Tick()
	}
	a.OnStatus(order.StatusCancelled)
	a.OnStatus(order.StatusOutForDelivery)
	for i := 0; i < 4; i++ {
		a.Tick()
	}
	if *arrivals != 2 {
		t.Fatalf("each run must arrive once, got %d", *arrivals)
	}
}

func TestReportedPositionIsDisplayOnly(t *testing.T) {
	a, _, arrivals := newAnimator(t)
	a.SetRoute(diagonal(5))
	a.OnStatus(order.StatusOutForDelivery)
	a.Tick()

	a.Report(types.Point{Lat: 10, Lng: 20})
	pos, _ := a.Position()
	if pos.Point != (types.Point{Lat: 10, Lng: 20}) || pos.Source != SourceReported {
		t.Fatalf("position = %+v, want reported (10,20)", pos)
	}
	if a.Cursor() != 1 {
		t.Fatalf("cursor = %d, want 1", a.Cursor())
	}

	a.Tick()
	a.Tick()
	if a.State() != StateInTransit {
		t.Fatal("report must not shorten the run")
	}
	a.Tick()
	if a.State() != StateArrived || *arrivals != 1 {
		t.Fatalf("state = %s arrivals = %d, want ARRIVED once after 4 ticks", a.State(), *arrivals)
	}
}

func TestDeliveredSnapsToDestination(t *testing.T) {
	a, timer, _ := newAnimator(t)
	a.SetRoute(diagonal(5))
	a.OnStatus(order.StatusOutForDelivery)
	a.Tick()
	a.OnStatus(order.StatusDelivered)

	if a.State() != StateAtDestination || timer.running {
		t.Fatalf("state = %s running = %v", a.State(), timer.running)
	}
	pos, _ := a.Position()
	if pos.Point != (types.Point{Lat: 4.5, Lng: 4.5}) {
		t.Fatalf("position = %+v, want delivery location", pos)
	}
	a.OnStatus(order.StatusPreparing)
	if a.State() != StateAtDestination {
		t.Fatal("AT_DESTINATION must be final")
	}
}

func TestRouteUnavailableStaysParked(t *testing.T) {
	a, timer, arrivals := newAnimator(t)
	a.SetRouteUnavailable()
	a.OnStatus(order.StatusOutForDelivery)
	for i := 0; i < 10; i++ {
		a.Tick()
	}
	if a.State() != StateParked || !a.Degraded() || timer.starts != 0 || *arrivals != 0 {
		t.Fatalf("state=%s degraded=%v starts=%d arrivals=%d", a.State(), a.Degraded(), timer.starts, *arrivals)
	}

	// a later successful retry starts the run
	a.SetRoute(diagonal(3))
	if a.State() != StateInTransit || a.Degraded() {
		t.Fatalf("state = %s degraded = %v after route retry", a.State(), a.Degraded())
	}
}

func TestRouteBeforeStatus(t *testing.T) {
	a, _, _ := newAnimator(t)
	a.OnStatus(order.StatusOutForDelivery)
	if a.State() != StateParked {
		t.Fatal("must wait for a route")
	}
	a.SetRoute(diagonal(3))
	if a.State() != StateInTransit {
		t.Fatalf("state = %s, want IN_TRANSIT once the route lands", a.State())
	}
	if got := len(a.Remaining()); got != 3 {
		t.Fatalf("remaining = %d, want 3", got)
	}
}
