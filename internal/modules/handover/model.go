// README: Handover model (coordinator states, challenge, transition table).
package handover

import "ordertrack/internal/types"

type State string

const (
	StateIdle                 State = "IDLE"
	StateCodeRequested        State = "CODE_REQUESTED"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StateVerifying            State = "VERIFYING"
	StateConfirmed            State = "CONFIRMED"
	StateFailed               State = "FAILED"
)

// Challenge is the one-time code issued for a delivery run.
type Challenge struct {
	OrderID types.ID `json:"order_id"`
	// Code is empty when the server sent it out-of-band.
	Code string `json:"code,omitempty"`
	Verified bool `json:"verified"`
	// DeliveredToClient is true when the code is shown on screen for the customer to read out.
	DeliveredToClient bool `json:"delivered_to_client"`
}

// AllowedTransitions defines the coordinator state machine. Reset returns to IDLE from anywhere.
var AllowedTransitions = map[State][]State{
	StateIdle:                 {StateCodeRequested},
	StateCodeRequested:        {StateAwaitingConfirmation, StateIdle},
	StateAwaitingConfirmation: {StateVerifying},
	StateVerifying:            {StateConfirmed, StateFailed},
	StateFailed:               {StateAwaitingConfirmation},
	StateConfirmed:            {},
}

func CanTransition(from, to State) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidCode reports whether code is exactly four ASCII digits.
func ValidCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
