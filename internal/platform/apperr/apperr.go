// Package apperr defines the error taxonomy shared by the scheduling, queue and
// bed domains. Callers classify failures with errors.Is against the sentinel
// kinds; wrapping preserves the kind through fmt.Errorf("...: %w", err).
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Each domain failure wraps exactly one of these.
var (
	ErrValidation        = errors.New("validation failed")
	ErrSlotConflict      = errors.New("slot conflict")
	ErrNotFound          = errors.New("not found")
	ErrBedUnavailable    = errors.New("bed unavailable")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrForbidden         = errors.New("forbidden")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrValidation, args)...)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrNotFound, args)...)
}

// Conflictf wraps ErrSlotConflict with a formatted message.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrSlotConflict, args)...)
}

// Transitionf wraps ErrInvalidTransition with a formatted message.
func Transitionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrInvalidTransition, args)...)
}

// Unavailablef wraps ErrBedUnavailable with a formatted message.
func Unavailablef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrBedUnavailable, args)...)
}

// Capacityf wraps ErrCapacityExceeded with a formatted message.
func Capacityf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrCapacityExceeded, args)...)
}

// Forbiddenf wraps ErrForbidden with a formatted message.
func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrForbidden, args)...)
}

// Retryable reports whether the error is worth retrying locally. Only lost
// conditional-write races qualify; everything else surfaces immediately.
func Retryable(err error) bool {
	return errors.Is(err, ErrSlotConflict)
}

func prepend(err error, args []interface{}) []interface{} {
	return append([]interface{}{err}, args...)
}
