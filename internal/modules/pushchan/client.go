// README: Push channel client owns one websocket per tracking session and reconnects with jittered backoff.
package pushchan

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"ordertrack/internal/metrics"
)

var ErrRetriesExhausted = errors.New("push channel: reconnect attempts exhausted")

type Options struct {
	// MaxRetries bounds consecutive failed (re)connect attempts.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Header         http.Header
	Dialer         *websocket.Dialer
	Logger         *slog.Logger
}

// Client is single-use: one Run per tracking session.
type Client struct {
	url  string
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	closed bool
	done   chan struct{}
}

func NewClient(url string, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = 10 * time.Second
		opts.Dialer = &d
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Client{
		url:   url,
		opts:  opts,
		log:   opts.Logger,
		state: StateConnecting,
		done:  make(chan struct{}),
	}
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	retries := c.opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Run connects and forwards decoded events to out until ctx ends, Close is called, or
// reconnect attempts are exhausted. Malformed frames are dropped. Connection state changes
// are sent to states when it is non-nil.
func (c *Client) Run(ctx context.Context, out chan<- Event, states chan<- State) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	// dialCtx aborts an in-flight handshake when Close is called.
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-dialCtx.Done():
		}
	}()

	bo := c.newBackOff(ctx)
	attempt := StateConnecting
	for {
		if c.isClosed() {
			return c.finish(ctx)
		}
		c.setState(attempt)
		c.emit(ctx, states, attempt)

		conn, _, err := c.opts.Dialer.DialContext(dialCtx, c.url, c.opts.Header)
		if err == nil {
			if !c.attach(conn) {
				_ = conn.Close()
				return c.finish(ctx)
			}
			bo.Reset()
			c.emit(ctx, states, StateOpen)
			c.log.Info("push channel connected", slog.String("url", c.url))
			err = c.readLoop(ctx, conn, out)
			c.detach(conn)
		}
		if c.isClosed() {
			return c.finish(ctx)
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			c.setState(StateDown)
			c.emit(ctx, states, StateDown)
			c.log.Warn("push channel down", slog.String("url", c.url), slog.Any("error", err))
			return ErrRetriesExhausted
		}
		metrics.PushReconnectsTotal.Inc()
		c.log.Warn("push channel dropped; reconnecting",
			slog.String("url", c.url), slog.Duration("backoff", wait), slog.Any("error", err))
		attempt = StateReconnecting
		c.setState(attempt)
		c.emit(ctx, states, attempt)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-c.done:
			timer.Stop()
			return c.finish(ctx)
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- Event) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := Decode(data)
		if err != nil {
			metrics.PushMessagesTotal.WithLabelValues("dropped").Inc()
			c.log.Debug("dropping push frame", slog.String("error", err.Error()), slog.Int("bytes", len(data)))
			continue
		}
		metrics.PushMessagesTotal.WithLabelValues("accepted").Inc()
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		}
	}
}

// Close tears the connection down. Only an open connection is actually closed; calling it
// again, or while connecting, is a no-op apart from stopping further reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.state != StateOpen || c.conn == nil {
		c.state = StateClosed
		return nil
	}
	c.state = StateClosing
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.conn = conn
	c.state = StateOpen
	return true
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	if !c.closed {
		_ = conn.Close()
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.state = s
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) finish(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateClosed
	c.conn = nil
	c.mu.Unlock()
	return ctx.Err()
}

func (c *Client) emit(ctx context.Context, states chan<- State, s State) {
	if states == nil {
		return
	}
	select {
	case states <- s:
	case <-ctx.Done():
	case <-c.done:
	}
}
