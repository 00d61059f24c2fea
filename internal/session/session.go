// README: Tracking session runs the single event loop that owns order, animator and handover state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"ordertrack/internal/metrics"
	"ordertrack/internal/modules/animation"
	"ordertrack/internal/modules/handover"
	"ordertrack/internal/modules/journal"
	"ordertrack/internal/modules/location"
	"ordertrack/internal/modules/order"
	"ordertrack/internal/modules/pushchan"
	"ordertrack/internal/modules/route"
	"ordertrack/internal/types"
)

const tracerName = "ordertrack/internal/session"

var ErrSessionEnded = errors.New("tracking session ended")

// RouteResolver is satisfied by route.Provider.
type RouteResolver interface {
	GetRoute(ctx context.Context, start, end types.Point) (route.Route, error)
}

// PushChannel is satisfied by pushchan.Client.
type PushChannel interface {
	Run(ctx context.Context, out chan<- pushchan.Event, states chan<- pushchan.State) error
	Close() error
}

// Feed is an additional source of driver updates, such as location.Feed.
type Feed interface {
	Run(ctx context.Context, out chan<- pushchan.Event) error
}

// Ticker is the subset of time.Ticker the loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Deps struct {
	Orders order.Source
	API    handover.API
	Routes RouteResolver
	Push   PushChannel
	// Feed is optional.
	Feed Feed
	// NewFeed builds Feed once the order id is known; ignored when Feed is set.
	NewFeed   func(orderID types.ID) Feed
	Journal   journal.Recorder
	NewTicker func(d time.Duration) Ticker
	Logger    *slog.Logger
	Tracer    trace.Tracer
}

type Config struct {
	Tick        time.Duration
	MaxAttempts int
}

type Session struct {
	id   string
	deps Deps
	cfg  Config
	log  *slog.Logger

	tracker  *order.Tracker
	anim     *animation.Animator
	handover *handover.Coordinator
	cadence  *cadence

	board *board
	inbox chan func()
	done  chan struct{}
	once  sync.Once

	// set at Run start, read by Go
	ctx context.Context
	wg  sync.WaitGroup

	// loop-owned
	orderID       types.ID
	routeInFlight bool
	routeFailed   bool
	noActiveOrder bool
	ended         bool
	eta           string
	distance      string
	message       string
}

func New(deps Deps, cfg Config) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.NewTicker == nil {
		deps.NewTicker = newTimeTicker
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 800 * time.Millisecond
	}

	id := uuid.NewString()
	log := deps.Logger.With(slog.String("session_id", id))
	s := &Session{
		id:    id,
		deps:  deps,
		cfg:   cfg,
		log:   log,
		inbox: make(chan func(), 64),
		done:  make(chan struct{}),
		board: newBoard(View{SessionID: id, Channel: order.ChannelConnecting, Marker: animation.StateParked, Handover: HandoverView{State: handover.StateIdle}}),
	}
	s.cadence = &cadence{newTicker: deps.NewTicker, interval: cfg.Tick}
	s.tracker = order.NewTracker(deps.Orders, log)
	s.anim = animation.NewAnimator(s.cadence, log)
	s.handover = handover.NewCoordinator(deps.API, s, handover.Options{
		MaxAttempts: cfg.MaxAttempts,
		Logger:      log,
		Tracer:      deps.Tracer,
	})
	s.wire()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) wire() {
	s.tracker.Subscribe(func(from, to order.Status) {
		metrics.StatusTransitionsTotal.WithLabelValues(string(to)).Inc()
		s.record(journal.KindOrder, string(from), string(to))
		s.log.Info("order status changed", slog.String("order_id", string(s.orderID)), slog.String("from", string(from)), slog.String("to", string(to)))
		switch {
		case to == order.StatusDelivered:
			s.handover.Dismiss()
		case from == order.StatusOutForDelivery:
			s.handover.Reset()
		}
		s.anim.OnStatus(to)
	})
	s.anim.Subscribe(func(from, to animation.State) {
		s.record(journal.KindAnimator, string(from), string(to))
	})
	s.anim.OnArrive(s.handover.OnArrived)
	s.handover.Subscribe(func(from, to handover.State) {
		s.record(journal.KindHandover, string(from), string(to))
	})
	s.handover.OnConfirmed(func() {
		s.tracker.ForceDelivered()
	})
}

// Run drives the session until the order reaches a terminal status (nil), no active order
// exists (order.ErrNoActiveOrder), or ctx ends (ctx.Err()). The ticker, push connection,
// feed and in-flight requests are released on every path.
func (s *Session) Run(ctx context.Context) (err error) {
	ctx, span := s.deps.Tracer.Start(ctx, "Session.Run", trace.WithAttributes(attribute.String("session.id", s.id)))
	defer span.End()
	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx

	metrics.SessionsActive.Inc()
	defer func() {
		cancel()
		s.cadence.Stop()
		_ = s.deps.Push.Close()
		s.wg.Wait()
		s.ended = true
		s.publish()
		s.once.Do(func() { close(s.done) })
		metrics.SessionsActive.Dec()
		s.log.Info("tracking session ended", slog.Any("result", err))
	}()

	o, err := s.tracker.Initialize(ctx)
	if err != nil {
		if errors.Is(err, order.ErrNoActiveOrder) {
			s.noActiveOrder = true
			return err
		}
		return fmt.Errorf("initializing tracker: %w", err)
	}
	s.orderID = o.ID
	span.SetAttributes(attribute.String("order.id", string(o.ID)))
	s.log.Info("tracking order", slog.String("order_id", string(o.ID)), slog.String("status", string(o.Status)))

	s.handover.SetOrder(o.ID)
	s.anim.SetEndpoints(o.Restaurant, o.Delivery)
	s.anim.OnStatus(o.Status)
	if o.Status.Terminal() {
		return nil
	}

	events := make(chan pushchan.Event, 16)
	states := make(chan pushchan.State, 8)
	s.spawn(func() {
		if err := s.deps.Push.Run(ctx, events, states); err != nil && ctx.Err() == nil {
			s.log.Warn("push channel stopped", slog.String("error", err.Error()))
		}
	})
	feed := s.deps.Feed
	if feed == nil && s.deps.NewFeed != nil {
		feed = s.deps.NewFeed(o.ID)
	}
	if feed != nil {
		s.spawn(func() { _ = feed.Run(ctx, events) })
	}
	s.requestRoute()
	s.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.cadence.C():
			s.anim.Tick()
		case ev := <-events:
			s.handleEvent(ev)
		case st := <-states:
			s.handleChannelState(st)
		case fn := <-s.inbox:
			fn()
		}
		s.publish()
		if s.tracker.Terminal() {
			return nil
		}
	}
}

// Go runs blocking work off the loop and applies its completion on the loop. Completions
// arriving after the session ended are discarded.
func (s *Session) Go(work func(ctx context.Context) func()) {
	ctx := s.ctx
	s.spawn(func() {
		apply := work(ctx)
		if apply == nil {
			return
		}
		select {
		case s.inbox <- apply:
		case <-ctx.Done():
		}
	})
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Session) requestRoute() {
	o, ok := s.tracker.Order()
	if !ok || s.routeInFlight || s.anim.HasRoute() {
		return
	}
	if o.Restaurant == nil || o.Delivery == nil {
		s.log.Warn("route endpoints unknown; marker stays parked", slog.String("order_id", string(o.ID)))
		s.anim.SetRouteUnavailable()
		return
	}
	s.routeInFlight = true
	start, end := *o.Restaurant, *o.Delivery
	s.Go(func(ctx context.Context) func() {
		r, err := s.deps.Routes.GetRoute(ctx, start, end)
		return func() {
			s.routeInFlight = false
			if err != nil {
				s.routeFailed = true
				s.log.Warn("route unavailable; marker stays parked", slog.String("order_id", string(o.ID)), slog.String("error", err.Error()))
				s.anim.SetRouteUnavailable()
				return
			}
			s.routeFailed = false
			s.anim.SetRoute(r)
		}
	})
}

func (s *Session) handleEvent(ev pushchan.Event) {
	switch e := ev.(type) {
	case pushchan.StatusEvent:
		if _, err := s.tracker.ApplyStatusUpdate(order.Status(e.Status)); err != nil {
			s.log.Warn("ignoring status event", slog.String("status", e.Status), slog.String("error", err.Error()))
		}
	case pushchan.DriverUpdateEvent:
		if e.OrderID != "" && e.OrderID != s.orderID {
			s.log.Debug("dropping driver update for another order", slog.String("order_id", string(e.OrderID)))
			return
		}
		if e.Position != nil {
			s.anim.Report(*e.Position)
		}
		if e.ETAText != nil {
			s.eta = *e.ETAText
		}
		if e.DistanceText != nil {
			s.distance = *e.DistanceText
		}
		if e.Message != nil {
			s.message = *e.Message
		}
	}
}

func (s *Session) handleChannelState(st pushchan.State) {
	var cs order.ChannelState
	switch st {
	case pushchan.StateConnecting:
		cs = order.ChannelConnecting
	case pushchan.StateOpen:
		cs = order.ChannelOpen
	case pushchan.StateReconnecting:
		cs = order.ChannelReconnecting
	case pushchan.StateDown:
		cs = order.ChannelDown
	default:
		cs = order.ChannelClosed
	}
	prev := s.tracker.ChannelState()
	if prev == cs {
		return
	}
	s.tracker.SetChannelState(cs)
	s.record(journal.KindChannel, string(prev), string(cs))
}

// SubmitCode forwards a handover code to the coordinator. Local rejections come back as
// handover.ErrInvalidCode, handover.ErrNotAwaiting or handover.ErrLockedOut.
func (s *Session) SubmitCode(ctx context.Context, code string) error {
	if !handover.ValidCode(code) {
		return handover.ErrInvalidCode
	}
	return s.call(ctx, func() error { return s.handover.Submit(code) })
}

// RetryRoute re-requests a failed route. It reports whether a request was made.
func (s *Session) RetryRoute(ctx context.Context) (bool, error) {
	var retried bool
	err := s.call(ctx, func() error {
		if !s.routeFailed || s.routeInFlight {
			return nil
		}
		s.requestRoute()
		retried = s.routeInFlight
		return nil
	})
	return retried, err
}

// RetryIssue re-attempts a failed OTP issuance. It reports whether a request was made.
func (s *Session) RetryIssue(ctx context.Context) (bool, error) {
	var retried bool
	err := s.call(ctx, func() error {
		retried = s.handover.RetryIssue()
		return nil
	})
	return retried, err
}

// call runs fn on the loop and waits for its result.
func (s *Session) call(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case s.inbox <- func() { res <- fn() }:
	case <-s.done:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns the latest published snapshot.
func (s *Session) View() View { return s.board.get() }

// Subscribe returns a channel signalled after each published change and a cancel func.
func (s *Session) Subscribe() (<-chan struct{}, func()) { return s.board.subscribe() }

// Done is closed once Run has returned and released its resources.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) publish() {
	v := View{
		SessionID:     s.id,
		OrderID:       s.orderID,
		Status:        s.tracker.Status(),
		Banner:        bannerFor(s.tracker.Status()),
		NoActiveOrder: s.noActiveOrder,
		Ended:         s.ended,
		Channel:       s.tracker.ChannelState(),
		Marker:        s.anim.State(),
		Cursor:        s.anim.Cursor(),
		Route:         s.anim.Route(),
		RouteDegraded: s.anim.Degraded(),
		ETAText:       s.eta,
		DistanceText:  s.distance,
		Message:       s.message,
		UpdatedAt:     time.Now(),
	}
	if pos, ok := s.anim.Position(); ok {
		v.Driver = &pos
		if ahead := s.anim.Remaining(); len(ahead) > 0 {
			m := location.RemainingMeters(pos.Point, ahead)
			v.RemainingMeters = &m
			v.RemainingText = location.FormatDistance(m)
		}
	}

	h := HandoverView{
		State:         s.handover.State(),
		PromptOpen:    s.handover.PromptOpen(),
		Attempts:      s.handover.Attempts(),
		LockedOut:     s.handover.LockedOut(),
		CanRetryIssue: s.handover.IssueFailed(),
	}
	if ch, ok := s.handover.Challenge(); ok && h.PromptOpen {
		h.Code = ch.Code
		h.DeliveredToClient = ch.DeliveredToClient
	}
	if err := s.handover.LastError(); err != nil {
		h.Error = userMessage(err)
	}
	v.Handover = h
	s.board.set(v)
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, handover.ErrVerificationFailed):
		return "Invalid OTP. Please check the code and try again."
	case errors.Is(err, handover.ErrIssuanceFailed):
		return "Could not open the handover window. Try again."
	}
	return err.Error()
}

func (s *Session) record(kind journal.Kind, from, to string) {
	s.deps.Journal.Record(journal.Event{
		SessionID: s.id,
		OrderID:   s.orderID,
		Kind:      kind,
		From:      from,
		To:        to,
		CreatedAt: time.Now().UTC(),
	})
}

// cadence is the animator's timer; the loop selects on C.
type cadence struct {
	newTicker func(time.Duration) Ticker
	interval  time.Duration
	ticker    Ticker
}

func (c *cadence) Start() {
	if c.ticker != nil {
		c.ticker.Stop()
	}
	c.ticker = c.newTicker(c.interval)
}

func (c *cadence) Stop() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

// C returns nil while stopped, which blocks forever in a select.
func (c *cadence) C() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C()
}

type timeTicker struct{ t *time.Ticker }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
