package domain

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned when an order ID cannot be found in the
// current order set (typically a stale client after regeneration).
var ErrOrderNotFound = errors.New("order not found")

// ValidationError reports a malformed or inconsistent request payload.
// It is recoverable: callers surface it as a success=false result.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidStateError reports a transition requested while the protocol state
// machine is not in a compatible state. Recoverable; the session state is
// left unchanged.
type InvalidStateError struct {
	Msg string
}

func (e *InvalidStateError) Error() string { return e.Msg }

// InvalidStatef builds an InvalidStateError from a format string.
func InvalidStatef(format string, args ...any) error {
	return &InvalidStateError{Msg: fmt.Sprintf(format, args...)}
}

// IsRecoverable reports whether err belongs to the recoverable taxonomy
// (validation, invalid state, unknown order). Recoverable errors become
// normal {success:false} responses; anything else is an internal fault.
func IsRecoverable(err error) bool {
	var ve *ValidationError
	var se *InvalidStateError
	return errors.As(err, &ve) || errors.As(err, &se) || errors.Is(err, ErrOrderNotFound)
}
