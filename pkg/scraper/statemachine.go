package scraper

import "fmt"

// Status is a run state. Transitions are strictly forward; terminal states
// are never re-entered.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var validTransitions = map[Status][]Status{
	StatusPending: {
		StatusRunning,   // first fetch dispatched
		StatusFailed,    // policy violation or adapter failure before dispatch
		StatusCancelled, // stop requested before the run started
	},
	StatusRunning: {
		StatusSucceeded,
		StatusFailed,
		StatusCancelled,
	},
	// terminal states
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// ValidateTransition checks a state change against the transition table.
func ValidateTransition(from, to Status) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown run status %q", from)
	}
	for _, next := range allowed {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("invalid run transition from %s to %s", from, to)
}

// IsTerminal reports whether a run in this status accepts no further changes.
func IsTerminal(s Status) bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether a run in this status blocks new runs for its
// source domain.
func IsActive(s Status) bool {
	return s == StatusPending || s == StatusRunning
}
