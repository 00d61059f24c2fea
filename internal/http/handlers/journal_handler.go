// README: Journal handler serves the transitions recorded for the running session.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ordertrack/internal/modules/journal"
)

// History reads back journaled events.
type History interface {
	ListBySession(ctx context.Context, sessionID string) ([]journal.Event, error)
}

type JournalHandler struct {
	tracker Tracker
	history History
}

func NewJournalHandler(t Tracker, h History) *JournalHandler {
	return &JournalHandler{tracker: t, history: h}
}

func (h *JournalHandler) List(c *gin.Context) {
	sessionID := h.tracker.View().SessionID
	events, err := h.history.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to read journal")
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"session_id": sessionID, "events": events})
}
