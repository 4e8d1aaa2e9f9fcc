package exchange

import "errors"

var (
	// ErrOwnOrder is returned when a session tries to accept its own order.
	ErrOwnOrder = errors.New("cannot accept own order")
	// ErrMissingSession is returned for orders without the address of the
	// session sending them.
	ErrMissingSession = errors.New("missing session address")
)
