package dispatch

import "sync"

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Broker manages per-transfer event streaming to subscribers.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a transfer resolves) receive a closed channel instead of
// blocking forever. Each marker is a few bytes, which is acceptable for the
// expected transfer volume.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan string
	nextID int
	closed bool
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
	}
}

// Subscribe returns a channel that receives events for the given transfer
// and an unsubscribe function. If the transfer has already resolved (Close
// was called), the returned channel is immediately closed.
func (b *Broker) Subscribe(transferID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[transferID]
	if !ok {
		t = &topic{subs: make(map[int]chan string)}
		b.topics[transferID] = t
	}

	ch := make(chan string, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event to all subscribers of the given transfer.
// Events are dropped for subscribers whose buffers are full.
func (b *Broker) Publish(transferID string, event string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[transferID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- event:
		default:
			// Drop for slow subscribers rather than stall the worker path.
		}
	}
}

// Close signals that no more events will be published for the given transfer.
// All subscriber channels are closed and future Subscribe calls return a
// closed channel.
func (b *Broker) Close(transferID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[transferID]
	if !ok {
		b.topics[transferID] = &topic{subs: make(map[int]chan string), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
