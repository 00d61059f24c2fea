// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ordertrack/internal/modules/handover"
	"ordertrack/internal/session"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeTrackingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, handover.ErrInvalidCode):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, handover.ErrNotAwaiting):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, handover.ErrLockedOut):
		writeError(c, http.StatusLocked, err.Error())
	case errors.Is(err, session.ErrSessionEnded):
		writeError(c, http.StatusGone, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
