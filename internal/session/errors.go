package session

import "errors"

var (
	// ErrClosed is returned by every operation on a closed Machine.
	ErrClosed = errors.New("session closed")
	// ErrNotInProgress rejects input while nothing is being answered:
	// still loading, failed to load, or already delivered.
	ErrNotInProgress = errors.New("attempt not in progress")
	// ErrSessionBusy is returned when another connection already drives the
	// attempt.
	ErrSessionBusy = errors.New("attempt already has a live session")
)
