package xbridge

import "errors"

var (
	// ErrNotHub is returned when asking for the hub transactions of a node
	// without exchange.
	ErrNotHub = errors.New("exchange not enabled on this node")
	// ErrAlreadyStarted is returned when starting a running service.
	ErrAlreadyStarted = errors.New("service already started")
	// ErrNotStarted is returned when stopping a service that is not running.
	ErrNotStarted = errors.New("service not started")
	// ErrUnknownSession is returned when a swap refers to a session that
	// does not belong to this node.
	ErrUnknownSession = errors.New("swap not owned by any local session")
)
