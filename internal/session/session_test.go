package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ordertrack/internal/modules/animation"
	"ordertrack/internal/modules/handover"
	"ordertrack/internal/modules/order"
	"ordertrack/internal/modules/pushchan"
	"ordertrack/internal/modules/route"
	"ordertrack/internal/types"
)

const wait = 2 * time.Second
const poll = 5 * time.Millisecond

type fakeOrders struct {
	order *order.Order
	err   error
}

func (f *fakeOrders) LatestOrder(context.Context) (*order.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.order
	return &cp, nil
}

type fakeAPI struct {
	mu       sync.Mutex
	code     string
	valid    string
	issued   int
	verified []string
}

func (f *fakeAPI) GenerateOTP(context.Context, types.ID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	return f.code, nil
}

func (f *fakeAPI) CompleteDelivery(_ context.Context, _ types.ID, otp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, otp)
	if otp != f.valid {
		return handover.ErrCodeRejected
	}
	return nil
}

func (f *fakeAPI) issuedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issued
}

type fakeRoutes struct {
	mu    sync.Mutex
	route route.Route
	fail  bool
	calls int
}

func (f *fakeRoutes) GetRoute(context.Context, types.Point, types.Point) (route.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return route.Route{}, route.ErrRouteUnavailable
	}
	return f.route, nil
}

func (f *fakeRoutes) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

type fakePush struct {
	events chan pushchan.Event
	states chan pushchan.State
	closed atomic.Int32
}

func newFakePush() *fakePush {
	return &fakePush{events: make(chan pushchan.Event), states: make(chan pushchan.State)}
}

func (f *fakePush) Run(ctx context.Context, out chan<- pushchan.Event, states chan<- pushchan.State) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.events:
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case st := <-f.states:
			select {
			case states <- st:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (f *fakePush) Close() error {
	f.closed.Add(1)
	return nil
}

type fakeClock struct {
	ticks   chan time.Time
	started atomic.Int32
	stopped atomic.Int32
}

type fakeTicker struct{ c *fakeClock }

func (t fakeTicker) C() <-chan time.Time { return t.c.ticks }
func (t fakeTicker) Stop()               { t.c.stopped.Add(1) }

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.started.Add(1)
	return fakeTicker{c: c}
}

func (c *fakeClock) active() int32 { return c.started.Load() - c.stopped.Load() }

type harness struct {
	s      *Session
	api    *fakeAPI
	routes *fakeRoutes
	push   *fakePush
	clock  *fakeClock
	errCh  chan error
	cancel context.CancelFunc
}

func diagonal(n int) route.Route {
	var r route.Route
	for i := 0; i < n; i++ {
		r.Waypoints = append(r.Waypoints, types.Point{Lat: float64(i), Lng: float64(i)})
	}
	return r
}

func start(t *testing.T, status order.Status, cfg Config) *harness {
	t.Helper()
	h := &harness{
		api:    &fakeAPI{valid: "1234"},
		routes: &fakeRoutes{route: diagonal(5)},
		push:   newFakePush(),
		clock:  &fakeClock{ticks: make(chan time.Time)},
		errCh:  make(chan error, 1),
	}
	orders := &fakeOrders{order: &order.Order{
		ID:         "42",
		Status:     status,
		Restaurant: &types.Point{Lat: 0, Lng: 0},
		Delivery:   &types.Point{Lat: 4, Lng: 4},
	}}
	h.s = New(Deps{
		Orders:    orders,
		API:       h.api,
		Routes:    h.routes,
		Push:      h.push,
		NewTicker: h.clock.NewTicker,
	}, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() { h.errCh <- h.s.Run(ctx) }()
	return h
}

func (h *harness) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case h.clock.ticks <- time.Now():
		case <-time.After(wait):
			t.Fatalf("tick %d not consumed", i+1)
		}
	}
}

func (h *harness) result(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errCh:
		return err
	case <-time.After(wait):
		t.Fatal("session did not end")
		return nil
	}
}

func TestSession_DeliveryRunWithHandover(t *testing.T) {
	h := start(t, order.StatusOutForDelivery, Config{})

	require.Eventually(t, func() bool { return h.s.View().Marker == animation.StateInTransit }, wait, poll)
	h.tick(t, 4)

	require.Eventually(t, func() bool {
		v := h.s.View()
		return v.Marker == animation.StateArrived && v.Handover.PromptOpen
	}, wait, poll)
	v := h.s.View()
	require.Equal(t, types.Point{Lat: 4, Lng: 4}, v.Driver.Point)
	require.Equal(t, 1, h.api.issuedCount())
	require.EqualValues(t, 0, h.clock.active(), "ticker must stop on arrival")

	require.NoError(t, h.s.SubmitCode(context.Background(), "0000"))
	require.Eventually(t, func() bool {
		v := h.s.View()
		return v.Handover.State == handover.StateAwaitingConfirmation && v.Handover.Error != ""
	}, wait, poll)

	require.ErrorIs(t, h.s.SubmitCode(context.Background(), "12"), handover.ErrInvalidCode)
	require.NoError(t, h.s.SubmitCode(context.Background(), "1234"))

	require.NoError(t, h.result(t))
	v = h.s.View()
	require.Equal(t, order.StatusDelivered, v.Status)
	require.Equal(t, animation.StateAtDestination, v.Marker)
	require.False(t, v.Handover.PromptOpen)
	require.True(t, v.Ended)
	require.Equal(t, 1, h.api.issuedCount())
	require.GreaterOrEqual(t, h.push.closed.Load(), int32(1))
	<-h.s.Done()
	require.ErrorIs(t, h.s.SubmitCode(context.Background(), "1234"), ErrSessionEnded)
}

func TestSession_NoActiveOrder(t *testing.T) {
	push := newFakePush()
	s := New(Deps{
		Orders: &fakeOrders{err: order.ErrNoActiveOrder},
		API:    &fakeAPI{},
		Routes: &fakeRoutes{},
		Push:   push,
	}, Config{})

	err := s.Run(context.Background())
	require.ErrorIs(t, err, order.ErrNoActiveOrder)
	require.True(t, s.View().NoActiveOrder)
	require.EqualValues(t, 1, push.closed.Load())
	_, retryErr := s.RetryRoute(context.Background())
	require.ErrorIs(t, retryErr, ErrSessionEnded)
}

func TestSession_ReportedPositionAndDriverText(t *testing.T) {
	h := start(t, order.StatusOutForDelivery, Config{})
	require.Eventually(t, func() bool { return h.s.View().Marker == animation.StateInTransit }, wait, poll)
	h.tick(t, 1)

	eta, msg := "5 mins", "Almost there"
	pos := types.Point{Lat: 10, Lng: 20}
	h.push.events <- pushchan.DriverUpdateEvent{OrderID: "42", Position: &pos, ETAText: &eta}
	h.push.events <- pushchan.DriverUpdateEvent{Message: &msg}
	other := types.Point{Lat: 50, Lng: 50}
	h.push.events <- pushchan.DriverUpdateEvent{OrderID: "99", Position: &other}

	require.Eventually(t, func() bool { return h.s.View().Message == msg }, wait, poll)
	v := h.s.View()
	require.Equal(t, pos, v.Driver.Point)
	require.Equal(t, animation.SourceReported, v.Driver.Source)
	require.Equal(t, eta, v.ETAText, "absent fields must not clear known values")
	require.Equal(t, 1, v.Cursor)
	require.NotNil(t, v.RemainingMeters)

	h.tick(t, 3)
	require.Eventually(t, func() bool { return h.s.View().Marker == animation.StateArrived }, wait, poll)
}

func TestSession_StatusEventsDriveAnimator(t *testing.T) {
	h := start(t, order.StatusPreparing, Config{})
	require.Eventually(t, func() bool { return len(h.s.View().Route) == 5 }, wait, poll)
	require.Equal(t, animation.StateParked, h.s.View().Marker)
	require.Equal(t, "Order accepted! The restaurant is preparing your food.", h.s.View().Banner)

	h.push.events <- pushchan.StatusEvent{Status: "OUT_FOR_DELIVERY"}
	require.Eventually(t, func() bool { return h.s.View().Marker == animation.StateInTransit }, wait, poll)
	h.tick(t, 2)

	h.push.events <- pushchan.StatusEvent{Status: "NOT_A_STATUS"}
	h.push.events <- pushchan.StatusEvent{Status: "PREPARING"}
	require.Eventually(t, func() bool {
		v := h.s.View()
		return v.Marker == animation.StateParked && v.Cursor == 0
	}, wait, poll)
	require.EqualValues(t, 0, h.clock.active())

	h.push.events <- pushchan.StatusEvent{Status: "OUT_FOR_DELIVERY"}
	require.Eventually(t, func() bool { return h.s.View().Marker == animation.StateInTransit }, wait, poll)
	require.Equal(t, 0, h.s.View().Cursor)

	h.push.events <- pushchan.StatusEvent{Status: "CANCELLED"}
	require.NoError(t, h.result(t))
	require.Equal(t, order.StatusCancelled, h.s.View().Status)
	require.EqualValues(t, 0, h.clock.active())
	require.Equal(t, 1, h.routes.calls)
}

func TestSession_RouteFailureAndRetry(t *testing.T) {
	routes := &fakeRoutes{route: diagonal(3), fail: true}
	clock := &fakeClock{ticks: make(chan time.Time)}
	s := New(Deps{
		Orders: &fakeOrders{order: &order.Order{
			ID: "1", Status: order.StatusOutForDelivery,
			Restaurant: &types.Point{}, Delivery: &types.Point{Lat: 1, Lng: 1},
		}},
		API:       &fakeAPI{},
		Routes:    routes,
		Push:      newFakePush(),
		NewTicker: clock.NewTicker,
	}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.View().RouteDegraded }, wait, poll)
	require.Equal(t, animation.StateParked, s.View().Marker)
	require.Equal(t, types.Point{}, s.View().Driver.Point)

	routes.setFail(false)
	retried, err := s.RetryRoute(context.Background())
	require.NoError(t, err)
	require.True(t, retried)
	require.Eventually(t, func() bool { return s.View().Marker == animation.StateInTransit }, wait, poll)
	require.False(t, s.View().RouteDegraded)

	retried, err = s.RetryRoute(context.Background())
	require.NoError(t, err)
	require.False(t, retried, "retry is a no-op once the route resolved")

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(wait):
		t.Fatal("session did not stop")
	}
	require.EqualValues(t, 0, clock.active())
}

func TestSession_ChannelStateAndCancellation(t *testing.T) {
	h := start(t, order.StatusPending, Config{})
	h.push.states <- pushchan.StateOpen
	require.Eventually(t, func() bool { return h.s.View().Channel == order.ChannelOpen }, wait, poll)
	h.push.states <- pushchan.StateDown
	require.Eventually(t, func() bool { return h.s.View().Channel == order.ChannelDown }, wait, poll)

	updates, unsubscribe := h.s.Subscribe()
	defer unsubscribe()

	h.cancel()
	require.True(t, errors.Is(h.result(t), context.Canceled))
	select {
	case <-updates:
	case <-time.After(wait):
		t.Fatal("expected a final view notification")
	}
	require.True(t, h.s.View().Ended)
	require.GreaterOrEqual(t, h.push.closed.Load(), int32(1))
}

func TestSession_TerminalAtStart(t *testing.T) {
	h := start(t, order.StatusDelivered, Config{})
	require.NoError(t, h.result(t))
	v := h.s.View()
	require.Equal(t, animation.StateAtDestination, v.Marker)
	require.Equal(t, types.Point{Lat: 4, Lng: 4}, v.Driver.Point)
	require.Equal(t, 0, h.routes.calls)
}
