package ports

import "context"

// Transport floods serialized packets to every node of the network. Each
// node filters out what is not addressed to its sessions.
type Transport interface {
	// Start connects to the network and delivers every inbound message to
	// onMessage until ctx is done or Close is called.
	Start(ctx context.Context, onMessage func(raw []byte)) error
	Broadcast(ctx context.Context, raw []byte) error
	Close() error
}
