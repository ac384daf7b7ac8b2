package agent

import "sync"

// msgQueue is an unbounded multi-producer single-consumer queue. Producers
// never block; the consumer blocks on the ready channel, which coalesces any
// number of pushes into one readiness signal.
type msgQueue struct {
	mu    sync.Mutex
	items []message
	ready chan struct{} // capacity 1
}

func newMsgQueue() *msgQueue {
	return &msgQueue{ready: make(chan struct{}, 1)}
}

func (q *msgQueue) push(m message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// tryPop removes the oldest message, if any. Messages from one producer come
// out in the order that producer pushed them.
func (q *msgQueue) tryPop() (message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	m := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// Release the drained backing array.
		q.items = nil
	}
	return m, true
}
