package pubsub

import "errors"

var (
	// ErrInvalidTopic is returned when subscribing to a topic the service
	// doesn't publish.
	ErrInvalidTopic = errors.New("unknown topic")
	// ErrInvalidEndpoint is returned when the endpoint of a subscription is
	// not an absolute http(s) URL.
	ErrInvalidEndpoint = errors.New("webhook endpoint must be an absolute http(s) URL")
	// ErrSubscriptionNotFound is returned when removing an unknown
	// subscription.
	ErrSubscriptionNotFound = errors.New("webhook not found")
	// ErrClosed is returned by Publish once the service is closed.
	ErrClosed = errors.New("pubsub service is closed")
)
