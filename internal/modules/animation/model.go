// README: Position animator model (marker states, position sources, allowed transitions).
package animation

import "ordertrack/internal/types"

type State string

const (
	StateParked        State = "PARKED_AT_ORIGIN"
	StateInTransit     State = "IN_TRANSIT"
	StateArrived       State = "ARRIVED"
	StateAtDestination State = "AT_DESTINATION"
)

// Source tags where a displayed position came from.
type Source string

const (
	SourceSimulated Source = "simulated"
	SourceReported  Source = "reported"
)

type Position struct {
	Point  types.Point `json:"point"`
	Source Source      `json:"source"`
}

// AllowedTransitions defines the marker state machine.
var AllowedTransitions = map[State][]State{
	StateParked:        {StateInTransit, StateAtDestination},
	StateInTransit:     {StateArrived, StateParked, StateAtDestination},
	StateArrived:       {StateParked, StateAtDestination},
	StateAtDestination: {},
}

func CanTransition(from, to State) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
