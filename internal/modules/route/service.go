// README: Route provider resolves road-following routes with a per-session memo and an optional shared cache.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"ordertrack/internal/metrics"
	"ordertrack/internal/types"
)

var ErrRouteUnavailable = errors.New("route unavailable")

// Backend talks to an external routing service.
type Backend interface {
	FetchRoute(ctx context.Context, start, end types.Point) (Route, error)
}

// Cache is a shared store of resolved routes that outlives a session.
type Cache interface {
	Get(ctx context.Context, p Pair) (Route, bool, error)
	Set(ctx context.Context, p Pair, r Route) error
}

// Provider is scoped to one tracking session. It fetches each (start,end) pair at most
// once; failures are not memoised so an explicit retry can re-attempt.
type Provider struct {
	backend Backend
	cache   Cache
	log     *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	memo  map[Pair]Route
}

func NewProvider(backend Backend, cache Cache, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		backend: backend,
		cache:   cache,
		log:     logger,
		memo:    make(map[Pair]Route),
	}
}

// GetRoute returns the route between start and end or ErrRouteUnavailable.
func (p *Provider) GetRoute(ctx context.Context, start, end types.Point) (Route, error) {
	pair := Pair{Start: start, End: end}
	if r, ok := p.lookup(pair); ok {
		metrics.RouteRequestsTotal.WithLabelValues("memo").Inc()
		return r, nil
	}

	v, err, _ := p.group.Do(pair.Key(), func() (any, error) {
		if r, ok := p.lookup(pair); ok {
			return r, nil
		}
		r, err := p.resolve(ctx, pair)
		if err != nil {
			return Route{}, err
		}
		p.mu.Lock()
		p.memo[pair] = r
		p.mu.Unlock()
		return r, nil
	})
	if err != nil {
		metrics.RouteRequestsTotal.WithLabelValues("error").Inc()
		return Route{}, err
	}
	return v.(Route), nil
}

func (p *Provider) lookup(pair Pair) (Route, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.memo[pair]
	return r, ok
}

func (p *Provider) resolve(ctx context.Context, pair Pair) (Route, error) {
	if p.cache != nil {
		r, ok, err := p.cache.Get(ctx, pair)
		if err != nil {
			p.log.Warn("route cache read failed", slog.String("pair", pair.Key()), slog.String("error", err.Error()))
		} else if ok && r.Len() > 0 {
			metrics.RouteRequestsTotal.WithLabelValues("cache").Inc()
			return r, nil
		}
	}

	r, err := p.backend.FetchRoute(ctx, pair.Start, pair.End)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	if r.Len() == 0 {
		return Route{}, fmt.Errorf("%w: empty geometry", ErrRouteUnavailable)
	}
	metrics.RouteRequestsTotal.WithLabelValues("network").Inc()

	if p.cache != nil {
		if err := p.cache.Set(ctx, pair, r); err != nil {
			p.log.Warn("route cache write failed", slog.String("pair", pair.Key()), slog.String("error", err.Error()))
		}
	}
	return r, nil
}
