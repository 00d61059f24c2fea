// README: Config loader with env defaults for backend API, push channel, routing, storage and the local view server.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

var ErrMissingToken = errors.New("TRACK_API_TOKEN is required")

type RoutingConfig struct {
	Backend   string // "osrm" or "google"
	OSRMURL   string
	GoogleKey string
	CacheTTL  time.Duration
}

type PushConfig struct {
	URL            string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type HandoverConfig struct {
	// MaxAttempts caps wrong-code submissions per delivery run. 0 means unlimited.
	MaxAttempts int
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	DatabaseURL     string
	FeedInterval    time.Duration
}

type CourierConfig struct {
	OrderID  string
	Interval time.Duration
}

type Config struct {
	API struct {
		BaseURL string
		Token   string
	}
	View struct {
		Addr string
		// Token guards the local view surface when set.
		Token string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	Tick     time.Duration
	Push     PushConfig
	Routing  RoutingConfig
	Handover HandoverConfig
	Firebase FirebaseConfig
	Courier  CourierConfig
}

func Load() (Config, error) {
	var cfg Config
	cfg.API.BaseURL = envOrDefault("TRACK_API_BASE_URL", "http://127.0.0.1:8000")
	cfg.API.Token = os.Getenv("TRACK_API_TOKEN")
	cfg.View.Addr = envOrDefault("TRACK_VIEW_ADDR", ":8090")
	cfg.View.Token = os.Getenv("TRACK_VIEW_TOKEN")
	cfg.DB.DSN = os.Getenv("TRACK_DB_DSN")
	cfg.Redis.Addr = os.Getenv("TRACK_REDIS_ADDR")
	cfg.Tick = envOrDefaultDuration("TRACK_TICK", 800*time.Millisecond)

	cfg.Push.URL = envOrDefault("TRACK_PUSH_URL", "ws://127.0.0.1:8000/ws/tracking")
	cfg.Push.MaxRetries = envOrDefaultInt("TRACK_PUSH_MAX_RETRIES", 8)
	cfg.Push.InitialBackoff = envOrDefaultDuration("TRACK_PUSH_BACKOFF_INITIAL", 500*time.Millisecond)
	cfg.Push.MaxBackoff = envOrDefaultDuration("TRACK_PUSH_BACKOFF_MAX", 30*time.Second)

	cfg.Routing.Backend = envOrDefault("TRACK_ROUTER", "osrm")
	cfg.Routing.OSRMURL = envOrDefault("TRACK_OSRM_URL", "https://router.project-osrm.org")
	cfg.Routing.GoogleKey = os.Getenv("TRACK_GOOGLE_MAPS_KEY")
	cfg.Routing.CacheTTL = envOrDefaultDuration("TRACK_ROUTE_CACHE_TTL", 24*time.Hour)

	cfg.Handover.MaxAttempts = envOrDefaultInt("TRACK_OTP_MAX_ATTEMPTS", 0)

	cfg.Firebase.ProjectID = os.Getenv("TRACK_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("TRACK_FIREBASE_CREDENTIALS")
	cfg.Firebase.DatabaseURL = os.Getenv("TRACK_FIREBASE_DB_URL")
	cfg.Firebase.FeedInterval = envOrDefaultDuration("TRACK_FEED_INTERVAL", 2*time.Second)

	cfg.Courier.OrderID = os.Getenv("TRACK_COURIER_ORDER_ID")
	cfg.Courier.Interval = envOrDefaultDuration("TRACK_COURIER_INTERVAL", 3*time.Second)

	if cfg.API.Token == "" {
		return cfg, ErrMissingToken
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
