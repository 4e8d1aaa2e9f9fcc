package inmemory

import "errors"

// ErrClosed is returned when using an endpoint detached from its bus.
var ErrClosed = errors.New("endpoint is closed")
