package model

import "errors"

var (
	// ErrUnknownResource indicates an id that does not resolve to a registered
	// terminal, connection, service, barge or demand.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrDuplicateID indicates a resource was registered twice.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrCapacityExceeded indicates a load or assignment would exceed capacity.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrTimeWindowViolation indicates a schedule falls outside a demand's
	// availability/due window.
	ErrTimeWindowViolation = errors.New("time window violation")
	// ErrNoRoute indicates the network cannot connect two terminals.
	ErrNoRoute = errors.New("no route found")
	// ErrInvalidScenario indicates malformed initial data.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrIllegalTransition indicates a lifecycle transition that skips a state
	// or leaves an absorbing state.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrServiceClosed indicates a service no longer accepts demands.
	ErrServiceClosed = errors.New("service closed")
)
