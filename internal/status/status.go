// Package status defines the experiment lifecycle states and their
// allowed transitions.
package status

import "fmt"

// Status is the persisted lifecycle state of an experiment row.
type Status string

const (
	Created              Status = "created"
	CreatedForExecution  Status = "created_for_execution"
	Running              Status = "running"
	Done                 Status = "done"
	Error                Status = "error"
	Paused               Status = "paused"

	// All is a pseudo-value accepted only by reset filters; it is never
	// persisted to a row.
	All Status = "all"
)

// Terminal reports whether s ends a single run of the state machine.
func (s Status) Terminal() bool {
	return s == Done || s == Error
}

// transitions enumerates every edge in the state machine from spec §4.3.3.
var transitions = map[Status]map[Status]bool{
	Created:             {Running: true},
	CreatedForExecution: {Running: true},
	Running:             {Done: true, Error: true, Paused: true, Created: true},
	Paused:              {Running: true},
	Done:                {Created: true},
	Error:               {Created: true},
}

// Allowed reports whether the transition from -> to is permitted by the
// state machine.
func Allowed(from, to Status) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ValidateTransition returns an error unless the from->to edge exists.
func ValidateTransition(from, to Status) error {
	if !Allowed(from, to) {
		return fmt.Errorf("status: illegal transition %s -> %s", from, to)
	}
	return nil
}
