// README: Journal event model, one row per state transition observed by a tracking session.
package journal

import (
	"time"

	"ordertrack/internal/types"
)

type Kind string

const (
	KindOrder    Kind = "order"
	KindAnimator Kind = "animator"
	KindHandover Kind = "handover"
	KindChannel  Kind = "channel"
)

type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	OrderID   types.ID  `json:"order_id"`
	Kind      Kind      `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}
