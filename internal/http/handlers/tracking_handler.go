// README: Tracking handlers expose the session view and accept customer input.
package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ordertrack/internal/session"
)

// Tracker is the slice of *session.Session the handlers drive.
type Tracker interface {
	View() session.View
	Subscribe() (<-chan struct{}, func())
	Done() <-chan struct{}
	SubmitCode(ctx context.Context, code string) error
	RetryRoute(ctx context.Context) (bool, error)
	RetryIssue(ctx context.Context) (bool, error)
}

type TrackingHandler struct {
	tracker Tracker
}

func NewTrackingHandler(t Tracker) *TrackingHandler {
	return &TrackingHandler{tracker: t}
}

func (h *TrackingHandler) View(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.tracker.View())
}

// Stream pushes the view as server-sent events: once on connect, then after every change,
// until the client leaves or the session ends.
func (h *TrackingHandler) Stream(c *gin.Context) {
	updates, cancel := h.tracker.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("view", h.tracker.View())
	c.Writer.Flush()

	done := h.tracker.Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-updates:
			c.SSEvent("view", h.tracker.View())
			return true
		case <-done:
			c.SSEvent("view", h.tracker.View())
			return false
		}
	})
}

type submitOTPRequest struct {
	OTP string `json:"otp"`
}

func (h *TrackingHandler) SubmitOTP(c *gin.Context) {
	var req submitOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.tracker.SubmitCode(c.Request.Context(), req.OTP); err != nil {
		writeTrackingError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, map[string]any{"status": "verifying"})
}

func (h *TrackingHandler) RetryOTP(c *gin.Context) {
	retried, err := h.tracker.RetryIssue(c.Request.Context())
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, map[string]any{"retried": retried})
}

func (h *TrackingHandler) RetryRoute(c *gin.Context) {
	retried, err := h.tracker.RetryRoute(c.Request.Context())
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, map[string]any{"retried": retried})
}
