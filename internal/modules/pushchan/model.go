// README: Push channel events (tagged union) and connection states.
package pushchan

import "ordertrack/internal/types"

// Event is either a StatusEvent or a DriverUpdateEvent.
type Event interface {
	isEvent()
}

// StatusEvent carries a raw lifecycle status; validation belongs to the order tracker.
type StatusEvent struct {
	Status string
}

// DriverUpdateEvent fields are individually optional. A nil field means "not sent" and must
// not overwrite a previously known value.
type DriverUpdateEvent struct {
	OrderID      types.ID
	Position     *types.Point
	ETAText      *string
	DistanceText *string
	Message      *string
}

func (StatusEvent) isEvent()       {}
func (DriverUpdateEvent) isEvent() {}

type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
	// StateDown means reconnect attempts are exhausted.
	StateDown State = "down"
)
