package circuitbreaker

type State int

const (
	// StateClosed - normal operation, store calls pass through
	StateClosed State = iota

	// StateOpen - circuit is open, store calls fail immediately
	StateOpen

	// StateHalfOpen - testing if the store recovered, allow limited calls
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
