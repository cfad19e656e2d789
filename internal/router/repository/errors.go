package repository

import "errors"

// Sentinel errors for use with errors.Is.
var (
	// ErrInvalidInput indicates a required argument was missing or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the queue, agent, or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIllegalState indicates a precondition on the current state failed,
	// e.g. logging in an agent that is not logged out.
	ErrIllegalState = errors.New("illegal state")

	// ErrOffShift indicates a login was refused because the agent is
	// outside its shift window and force was not set.
	ErrOffShift = errors.New("agent off shift")
)
