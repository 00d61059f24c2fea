// README: Entry point; loads config, wires the tracking session and serves the local view surface.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ordertrack/internal/backend"
	"ordertrack/internal/config"
	httptransport "ordertrack/internal/http"
	"ordertrack/internal/http/handlers"
	"ordertrack/internal/infra"
	"ordertrack/internal/maps"
	"ordertrack/internal/modules/journal"
	"ordertrack/internal/modules/location"
	"ordertrack/internal/modules/order"
	"ordertrack/internal/modules/pushchan"
	"ordertrack/internal/modules/route"
	"ordertrack/internal/platform/observability"
	"ordertrack/internal/session"
	"ordertrack/internal/types"
)

func main() {
	if err := run(); err != nil {
		slog.Error("tracker exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, shutdown, err := observability.Init(ctx, "ordertrack-tracker")
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(flushCtx)
	}()
	logger := obs.Logger

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: 30 * time.Second}
	api := backend.NewClient(cfg.API.BaseURL, cfg.API.Token, httpClient)

	routeBackend, err := newRouteBackend(cfg.Routing, httpClient)
	if err != nil {
		return err
	}
	var cache route.Cache
	if cfg.Redis.Addr != "" {
		redisClient := infra.NewRedis(cfg.Redis.Addr)
		defer redisClient.Close()
		cache = route.NewRedisCache(redisClient, cfg.Routing.CacheTTL)
	}
	routes := route.NewProvider(routeBackend, cache, logger)

	var recorder journal.Recorder = journal.Nop{}
	var history handlers.History
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		store := journal.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		writer := journal.NewWriter(store, 0, logger)
		writerDone := make(chan struct{})
		go func() { writer.Run(context.Background()); close(writerDone) }()
		defer func() { writer.Close(); <-writerDone }()
		recorder = writer
		history = store
	}

	var newFeed func(types.ID) session.Feed
	if cfg.Firebase.ProjectID != "" {
		rtdb, err := infra.NewFirebaseDB(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			return err
		}
		store := location.NewStore(rtdb)
		newFeed = func(id types.ID) session.Feed {
			return location.NewFeed(store, id, cfg.Firebase.FeedInterval, logger)
		}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.API.Token)
	push := pushchan.NewClient(cfg.Push.URL, pushchan.Options{
		MaxRetries:     cfg.Push.MaxRetries,
		InitialBackoff: cfg.Push.InitialBackoff,
		MaxBackoff:     cfg.Push.MaxBackoff,
		Header:         header,
		Logger:         logger,
	})

	sess := session.New(session.Deps{
		Orders:  api,
		API:     api,
		Routes:  routes,
		Push:    push,
		NewFeed: newFeed,
		Journal: recorder,
		Logger:  logger,
		Tracer:  obs.Tracer("ordertrack/session"),
	}, session.Config{Tick: cfg.Tick, MaxAttempts: cfg.Handover.MaxAttempts})

	router := httptransport.NewRouter(httptransport.RouterDeps{Tracker: sess, Journal: history, Token: cfg.View.Token, Logger: logger})
	server := httptransport.NewServer(cfg.View.Addr, router, logger)
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run(serverCtx) }()

	err = sess.Run(ctx)
	switch {
	case err == nil:
		logger.Info("order reached a terminal status", slog.String("status", string(sess.View().Status)))
	case errors.Is(err, order.ErrNoActiveOrder):
		logger.Info("no active order")
	case errors.Is(err, context.Canceled):
	default:
		stopServer()
		<-serverErr
		return err
	}

	// Keep serving the final view until interrupted.
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return err
	}
	stopServer()
	return <-serverErr
}

func newRouteBackend(cfg config.RoutingConfig, httpClient *http.Client) (route.Backend, error) {
	if cfg.Backend == "google" {
		svc, err := maps.NewRouteService(cfg.GoogleKey)
		if err != nil {
			return nil, err
		}
		return svc, nil
	}
	return maps.NewOSRMService(cfg.OSRMURL, httpClient), nil
}
