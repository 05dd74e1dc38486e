package domain

import "errors"

var (
	// ErrTimeout is returned when an awaited confirmation event misses its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrUnsupportedEvent is returned when registering a listener for an unknown event name.
	ErrUnsupportedEvent = errors.New("unsupported event")
	// ErrDeviceUnavailable means no candidate device survived the fallback chain.
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrNotIdentified     = errors.New("local identity not established")
	ErrNotConnected      = errors.New("not connected")
	ErrClosed            = errors.New("session closed")
)
