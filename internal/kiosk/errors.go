package kiosk

import (
	"errors"
	"fmt"
)

// ValidationError is a request the controller rejected locally, before any
// network call and without changing state.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

var (
	ErrNoCollection      = &ValidationError{"please select a collection"}
	ErrUnknownCollection = &ValidationError{"unknown collection"}
	ErrNoCapture         = &ValidationError{"please capture a photo first"}
	ErrNotImage          = &ValidationError{"please capture a valid image"}
	ErrEmptySelection    = &ValidationError{"no images were selected"}
	ErrInvalidEmail      = &ValidationError{"please enter a valid email address"}
	ErrUnknownPath       = &ValidationError{"image is not part of the current results"}
	ErrSearchInFlight    = &ValidationError{"a search is already in progress"}
	ErrNotNavigable      = &ValidationError{"screen cannot be navigated to directly"}
)

// ErrClosed is returned by every operation once the controller was closed
var ErrClosed = errors.New("kiosk session closed")

// WrongScreenError reports an operation that is not available on the active screen
type WrongScreenError struct {
	Op     string
	Screen fmt.Stringer
}

func (e *WrongScreenError) Error() string {
	return fmt.Sprintf("%s is not available on the %s screen", e.Op, e.Screen)
}

// IsValidation reports whether err was a local validation failure
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsWrongScreen reports whether err was rejected because of the active screen
func IsWrongScreen(err error) bool {
	var w *WrongScreenError
	return errors.As(err, &w)
}
