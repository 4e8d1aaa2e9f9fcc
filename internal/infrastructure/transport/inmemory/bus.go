// Package inmemory provides a transport connecting nodes living in the same
// process, used by tests and local devnets.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tdex-network/xbridge/internal/core/ports"
)

// Bus floods every message broadcast by one of its endpoints to all the
// others. Delivery is synchronous: the handlers of the receivers are called
// by the sender goroutine.
type Bus struct {
	lock      *sync.RWMutex
	endpoints map[int]*Endpoint
	nextID    int
	drop      func(raw []byte) bool
}

func NewBus() *Bus {
	return &Bus{
		lock:      &sync.RWMutex{},
		endpoints: make(map[int]*Endpoint),
	}
}

// NewEndpoint returns a new transport attached to the bus.
func (b *Bus) NewEndpoint() *Endpoint {
	b.lock.Lock()
	defer b.lock.Unlock()

	e := &Endpoint{bus: b, id: b.nextID, lock: &sync.RWMutex{}}
	b.endpoints[e.id] = e
	b.nextID++
	return e
}

// SetDropFilter makes the bus lose the messages for which drop returns true.
// A nil filter delivers everything.
func (b *Bus) SetDropFilter(drop func(raw []byte) bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.drop = drop
}

func (b *Bus) broadcast(from int, raw []byte) {
	b.lock.RLock()
	if b.drop != nil && b.drop(raw) {
		b.lock.RUnlock()
		return
	}
	receivers := make([]*Endpoint, 0, len(b.endpoints))
	for id, e := range b.endpoints {
		if id != from {
			receivers = append(receivers, e)
		}
	}
	b.lock.RUnlock()

	for _, e := range receivers {
		e.deliver(raw)
	}
}

func (b *Bus) remove(id int) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.endpoints, id)
}

// Endpoint is the ports.Transport of one node attached to a Bus.
type Endpoint struct {
	bus       *Bus
	id        int
	lock      *sync.RWMutex
	onMessage func(raw []byte)
	closed    bool
}

var _ ports.Transport = (*Endpoint)(nil)

func (e *Endpoint) Start(ctx context.Context, onMessage func(raw []byte)) error {
	if onMessage == nil {
		return fmt.Errorf("missing message handler")
	}

	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return ErrClosed
	}
	e.onMessage = onMessage
	e.lock.Unlock()

	go func() {
		<-ctx.Done()
		e.Close()
	}()
	return nil
}

func (e *Endpoint) Broadcast(_ context.Context, raw []byte) error {
	e.lock.RLock()
	closed := e.closed
	e.lock.RUnlock()
	if closed {
		return ErrClosed
	}

	e.bus.broadcast(e.id, raw)
	return nil
}

func (e *Endpoint) Close() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.onMessage = nil
	e.bus.remove(e.id)
	return nil
}

func (e *Endpoint) deliver(raw []byte) {
	e.lock.RLock()
	onMessage := e.onMessage
	e.lock.RUnlock()

	if onMessage != nil {
		onMessage(append([]byte(nil), raw...))
	}
}
