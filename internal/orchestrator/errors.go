package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceSwapIncomplete is reported when a sentence switch replaces
	// one whose load had not finished yet. The newer switch wins.
	ErrResourceSwapIncomplete = errors.New("resource swap incomplete")
	// ErrInvalidState is returned when an operation is not allowed in the
	// current state.
	ErrInvalidState = errors.New("invalid state for operation")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator is closed")
)

// PlaybackError carries the context of a failed device operation to error
// listeners.
type PlaybackError struct {
	Op    string // "load", "play"
	Index int    // sentence index
	Err   error
}

// Error implements the error interface.
func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s sentence %d: %v", e.Op, e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *PlaybackError) Unwrap() error {
	return e.Err
}
