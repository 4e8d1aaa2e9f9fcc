package session

import "sync"

// SwapLocks serializes the processing of the packets of the same swap. It is
// shared by all the sessions of a node.
type SwapLocks struct {
	mu    *sync.Mutex
	locks map[string]*swapLock
}

type swapLock struct {
	mu   sync.Mutex
	refs int
}

func NewSwapLocks() *SwapLocks {
	return &SwapLocks{
		mu:    &sync.Mutex{},
		locks: make(map[string]*swapLock),
	}
}

// Lock blocks until the swap with the given id is free and returns the func
// to release it.
func (l *SwapLocks) Lock(id string) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &swapLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
