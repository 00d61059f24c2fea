// README: Handover coordinator issues the one-time code on arrival and verifies it before completion.
package handover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"ordertrack/internal/metrics"
	"ordertrack/internal/types"
)

const tracerName = "ordertrack/internal/modules/handover"

var (
	// ErrCodeRejected is returned by an API when the server refuses a code.
	ErrCodeRejected       = errors.New("handover code rejected")
	ErrIssuanceFailed     = errors.New("otp issuance failed")
	ErrVerificationFailed = errors.New("otp verification failed")
	ErrInvalidCode        = errors.New("otp must be 4 digits")
	ErrNotAwaiting        = errors.New("no handover prompt open")
	ErrLockedOut          = errors.New("too many failed otp attempts")
)

// API is the server side of the handshake.
type API interface {
	GenerateOTP(ctx context.Context, id types.ID) (string, error)
	CompleteDelivery(ctx context.Context, id types.ID, otp string) error
}

// Runner executes blocking work away from the owning loop. The closure returned by work is
// applied back on the loop.
type Runner interface {
	Go(work func(ctx context.Context) func())
}

type Listener func(from, to State)

type Options struct {
	// MaxAttempts locks the prompt after that many failed verifications; 0 means unlimited.
	MaxAttempts int
	Logger      *slog.Logger
	Tracer      trace.Tracer
}

// Coordinator is owned by a single event loop; it is not safe for concurrent use.
type Coordinator struct {
	api    API
	runner Runner
	log    *slog.Logger
	tracer trace.Tracer
	max    int

	orderID     types.ID
	// run identifies the current delivery run; completions from an earlier run are dropped.
	run         uint64
	state       State
	requested   bool
	issueFailed bool
	challenge   *Challenge
	attempts    int
	lastErr     error

	onConfirmed func()
	listeners   []Listener
}

func NewCoordinator(api API, run Runner, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	return &Coordinator{
		api:    api,
		runner: run,
		log:    opts.Logger,
		tracer: opts.Tracer,
		max:    opts.MaxAttempts,
		state:  StateIdle,
	}
}

func (c *Coordinator) SetOrder(id types.ID) { c.orderID = id }

// OnConfirmed registers the callback fired once the server accepts a code.
func (c *Coordinator) OnConfirmed(fn func()) { c.onConfirmed = fn }

func (c *Coordinator) Subscribe(l Listener) { c.listeners = append(c.listeners, l) }

// OnArrived starts issuance. Only the first call per delivery run issues a request.
func (c *Coordinator) OnArrived() {
	if c.requested {
		c.log.Debug("handover already requested", slog.String("order_id", string(c.orderID)))
		return
	}
	c.requested = true
	c.issue()
}

// RetryIssue re-attempts a failed issuance. It reports whether a request was made.
func (c *Coordinator) RetryIssue() bool {
	if !c.issueFailed || c.state != StateIdle {
		return false
	}
	c.issue()
	return true
}

func (c *Coordinator) issue() {
	c.issueFailed = false
	c.lastErr = nil
	c.transition(StateCodeRequested)
	id, run := c.orderID, c.run
	c.runner.Go(func(ctx context.Context) func() {
		ctx, span := c.tracer.Start(ctx, "Handover.GenerateOTP", trace.WithAttributes(attribute.String("order.id", string(id))))
		defer span.End()
		code, err := c.api.GenerateOTP(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return func() { c.issued(run, id, code, err) }
	})
}

func (c *Coordinator) issued(run uint64, id types.ID, code string, err error) {
	if run != c.run || c.state != StateCodeRequested || id != c.orderID {
		c.log.Debug("dropping stale otp issuance", slog.String("order_id", string(id)))
		return
	}
	if err != nil {
		metrics.OTPIssuedTotal.WithLabelValues("failed").Inc()
		c.issueFailed = true
		c.lastErr = fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
		c.log.Warn("otp issuance failed", slog.String("order_id", string(id)), slog.String("error", err.Error()))
		c.transition(StateIdle)
		return
	}
	variant := "out_of_band"
	if code != "" {
		variant = "on_screen"
	}
	metrics.OTPIssuedTotal.WithLabelValues(variant).Inc()
	c.challenge = &Challenge{OrderID: id, Code: code, DeliveredToClient: code != ""}
	c.transition(StateAwaitingConfirmation)
}

// Submit sends a code for verification. The result arrives asynchronously; the returned
// error only covers local rejections.
func (c *Coordinator) Submit(code string) error {
	if !ValidCode(code) {
		return ErrInvalidCode
	}
	if c.state != StateAwaitingConfirmation {
		return ErrNotAwaiting
	}
	if c.LockedOut() {
		return ErrLockedOut
	}
	c.attempts++
	c.lastErr = nil
	c.transition(StateVerifying)
	id, attempt, run := c.orderID, c.attempts, c.run
	c.runner.Go(func(ctx context.Context) func() {
		ctx, span := c.tracer.Start(ctx, "Handover.CompleteDelivery", trace.WithAttributes(
			attribute.String("order.id", string(id)), attribute.Int("handover.attempt", attempt)))
		defer span.End()
		err := c.api.CompleteDelivery(ctx, id, code)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return func() { c.verified(run, id, err) }
	})
	return nil
}

func (c *Coordinator) verified(run uint64, id types.ID, err error) {
	if run != c.run || c.state != StateVerifying || id != c.orderID {
		c.log.Debug("dropping stale otp verification", slog.String("order_id", string(id)))
		return
	}
	if err == nil {
		metrics.OTPVerificationsTotal.WithLabelValues("confirmed").Inc()
		c.challenge.Verified = true
		c.transition(StateConfirmed)
		c.log.Info("handover confirmed", slog.String("order_id", string(id)), slog.Int("attempts", c.attempts))
		if c.onConfirmed != nil {
			c.onConfirmed()
		}
		return
	}
	if errors.Is(err, ErrCodeRejected) {
		metrics.OTPVerificationsTotal.WithLabelValues("rejected").Inc()
	} else {
		metrics.OTPVerificationsTotal.WithLabelValues("error").Inc()
	}
	c.lastErr = fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	c.log.Warn("otp verification failed",
		slog.String("order_id", string(id)), slog.Int("attempt", c.attempts), slog.String("error", err.Error()))
	c.transition(StateFailed)
	c.transition(StateAwaitingConfirmation)
}

// Reset prepares the coordinator for a new delivery run.
func (c *Coordinator) Reset() {
	c.run++
	c.requested = false
	c.issueFailed = false
	c.challenge = nil
	c.attempts = 0
	c.lastErr = nil
	c.force(StateIdle)
}

// Dismiss closes any open prompt once the order completed by another path. No further
// code is issued for this run.
func (c *Coordinator) Dismiss() {
	if c.state == StateConfirmed {
		return
	}
	c.run++
	c.challenge = nil
	c.lastErr = nil
	c.issueFailed = false
	c.force(StateIdle)
}

func (c *Coordinator) State() State { return c.state }

// Challenge returns a copy of the current challenge.
func (c *Coordinator) Challenge() (Challenge, bool) {
	if c.challenge == nil {
		return Challenge{}, false
	}
	return *c.challenge, true
}

// PromptOpen reports whether the customer should currently see the code prompt.
func (c *Coordinator) PromptOpen() bool {
	switch c.state {
	case StateAwaitingConfirmation, StateVerifying, StateFailed:
		return true
	}
	return false
}

func (c *Coordinator) Attempts() int { return c.attempts }

func (c *Coordinator) LockedOut() bool { return c.max > 0 && c.attempts >= c.max }

// LastError is the most recent issuance or verification failure of this run.
func (c *Coordinator) LastError() error { return c.lastErr }

// IssueFailed reports whether RetryIssue would make a request.
func (c *Coordinator) IssueFailed() bool { return c.issueFailed && c.state == StateIdle }

func (c *Coordinator) transition(to State) {
	if !CanTransition(c.state, to) {
		c.log.Warn("rejecting handover transition", slog.String("from", string(c.state)), slog.String("to", string(to)))
		return
	}
	c.force(to)
}

func (c *Coordinator) force(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	for _, l := range c.listeners {
		l(from, to)
	}
}
