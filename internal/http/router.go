// README: HTTP router registration for the local tracking surface.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"ordertrack/internal/http/handlers"
	"ordertrack/internal/http/middleware"
)

type RouterDeps struct {
	Tracker handlers.Tracker
	// Journal serves /api/tracking/journal when set.
	Journal handlers.History
	// Token guards /api routes when set.
	Token  string
	Logger *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(otelgin.Middleware("ordertrack-view"), middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger))

	tracking := handlers.NewTrackingHandler(deps.Tracker)
	api := r.Group("/api/tracking", middleware.Auth(deps.Token))
	api.GET("/view", tracking.View)
	api.GET("/stream", tracking.Stream)
	api.POST("/otp", tracking.SubmitOTP)
	api.POST("/otp/retry", tracking.RetryOTP)
	api.POST("/route/retry", tracking.RetryRoute)
	if deps.Journal != nil {
		api.GET("/journal", handlers.NewJournalHandler(deps.Tracker, deps.Journal).List)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return r
}
