package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned when a live session already exists for the channel.
	ErrAlreadyActive = errors.New("capture: channel is already recording")
	// ErrNotRecording is returned when the channel has no live session.
	ErrNotRecording = errors.New("capture: channel is not recording")
	// ErrBatchSession is returned when a batch session is offered to the live store.
	ErrBatchSession = errors.New("capture: batch sessions cannot be registered")
)

// ValidationError reports a malformed directive field. The offending bound is dropped and
// processing continues with the remaining fields.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
