package script

import "errors"

var (
	// ErrClosed is returned when calling into a closed script.
	ErrClosed = errors.New("script is closed")

	// ErrNoHandler is returned when a script defines neither on_change nor
	// on_remove.
	ErrNoHandler = errors.New("script defines no on_change or on_remove function")
)
