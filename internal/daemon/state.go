package daemon

import "fmt"

// State is the daemon lifecycle state.
//
//	Initializing -> Steady <-> Degraded -> ShuttingDown
type State int

const (
	Initializing State = iota
	Steady
	Degraded
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Steady:
		return "steady"
	case Degraded:
		return "degraded"
	case ShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	switch name {
	case "initializing":
		return Initializing, nil
	case "steady":
		return Steady, nil
	case "degraded":
		return Degraded, nil
	case "shutting_down":
		return ShuttingDown, nil
	default:
		return 0, fmt.Errorf("unknown daemon state %q", name)
	}
}

// Health values reported in snapshots.
const (
	HealthOK      = "ok"
	HealthFailing = "failing"
)
