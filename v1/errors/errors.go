package errors

import "errors"

var (
	ErrTimeout = errors.New("timeout")
	ErrClosed  = errors.New("connection closed")
	ErrNotHeld = errors.New("lock not held")
)
