package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ordertrack/internal/http/handlers"
	"ordertrack/internal/modules/journal"
)

type stubHistory struct {
	events    []journal.Event
	err       error
	sessionID string
}

func (s *stubHistory) ListBySession(_ context.Context, sessionID string) ([]journal.Event, error) {
	s.sessionID = sessionID
	return s.events, s.err
}

func buildJournalRouter(t *stubTracker, h *stubHistory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/tracking/journal", handlers.NewJournalHandler(t, h).List)
	return r
}

func TestJournal_ListsCurrentSession(t *testing.T) {
	history := &stubHistory{events: []journal.Event{
		{ID: 1, SessionID: "s1", OrderID: "42", Kind: journal.KindOrder, From: "PREPARING", To: "OUT_FOR_DELIVERY", CreatedAt: time.Now().UTC()},
	}}
	w := doRequest(buildJournalRouter(newStubTracker(), history), http.MethodGet, "/api/tracking/journal", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if history.sessionID != "s1" {
		t.Fatalf("listed session %q, want s1", history.sessionID)
	}
	var body struct {
		SessionID string          `json:"session_id"`
		Events    []journal.Event `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].To != "OUT_FOR_DELIVERY" || body.Events[0].Kind != journal.KindOrder {
		t.Fatalf("unexpected events %+v", body.Events)
	}
}

func TestJournal_EmptyAndFailure(t *testing.T) {
	w := doRequest(buildJournalRouter(newStubTracker(), &stubHistory{}), http.MethodGet, "/api/tracking/journal", nil)
	if w.Code != http.StatusOK || !json.Valid(w.Body.Bytes()) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	var body struct {
		Events []journal.Event `json:"events"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Events == nil {
		t.Fatal("events must be an empty list, not null")
	}

	w = doRequest(buildJournalRouter(newStubTracker(), &stubHistory{err: errors.New("conn reset")}), http.MethodGet, "/api/tracking/journal", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
