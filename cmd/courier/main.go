// README: Courier simulator; drives along the route and shares its location for the customer's tracking session.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ordertrack/internal/backend"
	"ordertrack/internal/config"
	"ordertrack/internal/infra"
	"ordertrack/internal/maps"
	"ordertrack/internal/modules/location"
	"ordertrack/internal/modules/route"
	"ordertrack/internal/platform/observability"
	"ordertrack/internal/types"
)

func main() {
	if err := run(); err != nil {
		slog.Error("courier exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, shutdown, err := observability.Init(ctx, "ordertrack-courier")
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()
	logger := obs.Logger

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: 30 * time.Second}
	api := backend.NewClient(cfg.API.BaseURL, cfg.API.Token, httpClient)

	o, err := api.LatestOrder(ctx)
	if err != nil {
		return fmt.Errorf("loading order: %w", err)
	}
	if cfg.Courier.OrderID != "" {
		o.ID = types.ID(cfg.Courier.OrderID)
	}
	if o.Restaurant == nil || o.Delivery == nil {
		return fmt.Errorf("order %s has no route endpoints", o.ID)
	}

	var backendSvc route.Backend = maps.NewOSRMService(cfg.Routing.OSRMURL, httpClient)
	if cfg.Routing.Backend == "google" {
		svc, err := maps.NewRouteService(cfg.Routing.GoogleKey)
		if err != nil {
			return err
		}
		backendSvc = svc
	}
	r, err := route.NewProvider(backendSvc, nil, logger).GetRoute(ctx, *o.Restaurant, *o.Delivery)
	if err != nil {
		return err
	}

	var mirror *location.Store
	if cfg.Firebase.ProjectID != "" {
		rtdb, err := infra.NewFirebaseDB(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			return err
		}
		mirror = location.NewStore(rtdb)
	}

	logger.Info("courier departing", slog.String("order_id", string(o.ID)), slog.Int("waypoints", r.Len()))
	ticker := time.NewTicker(cfg.Courier.Interval)
	defer ticker.Stop()
	for i := 0; i < r.Len(); i++ {
		fix := fixAt(r, i)
		loc := backend.DriverLocation{
			Latitude:     fix.Lat,
			Longitude:    fix.Lng,
			DistanceText: fix.DistanceText,
			TimeText:     fix.TimeText,
			Message:      fix.Message,
		}
		if err := api.ShareDriverLocation(ctx, o.ID, loc); err != nil {
			logger.Warn("sharing location failed", slog.Int("waypoint", i), slog.String("error", err.Error()))
		}
		if mirror != nil {
			if err := mirror.Publish(ctx, o.ID, fix); err != nil {
				logger.Warn("mirroring location failed", slog.Int("waypoint", i), slog.String("error", err.Error()))
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	logger.Info("courier arrived", slog.String("order_id", string(o.ID)))
	return nil
}

// fixAt describes the courier standing on waypoint i.
func fixAt(r route.Route, i int) location.Fix {
	p := r.Waypoints[i]
	remaining := location.RemainingMeters(p, r.Waypoints[i:])
	fix := location.Fix{
		Lat:          p.Lat,
		Lng:          p.Lng,
		DistanceText: location.FormatDistance(remaining),
		Timestamp:    time.Now().UnixMilli(),
	}
	if r.Duration > 0 && r.Len() > 1 {
		left := time.Duration(float64(r.Duration) * float64(r.Len()-1-i) / float64(r.Len()-1))
		fix.TimeText = fmt.Sprintf("%d mins", int(left.Round(time.Minute)/time.Minute))
	}
	if i == r.Len()-1 {
		fix.Message = "Arrived at your location"
	}
	return fix
}
