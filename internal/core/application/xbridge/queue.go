package xbridge

import (
	"context"
	"sync"
)

// queue is the unbounded inbox of the workers. Pushing never blocks, so that
// workers can enqueue the packets they produce while handling others.
type queue struct {
	lock   *sync.Mutex
	items  [][]byte
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{
		lock:   &sync.Mutex{},
		signal: make(chan struct{}, 1),
	}
}

func (q *queue) push(raw []byte) {
	q.lock.Lock()
	q.items = append(q.items, raw)
	q.lock.Unlock()
	q.wake()
}

// pop waits for the next message. It returns false once ctx is done.
func (q *queue) pop(ctx context.Context) ([]byte, bool) {
	for {
		q.lock.Lock()
		if len(q.items) > 0 {
			raw := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			left := len(q.items)
			q.lock.Unlock()

			if left > 0 {
				q.wake()
			}
			return raw, true
		}
		q.lock.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.signal:
		}
	}
}

func (q *queue) len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.items)
}

func (q *queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
