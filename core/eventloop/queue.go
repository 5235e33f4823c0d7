package eventloop

import "sync"

// queue is a FIFO circular buffer.
// The buffer doubles its capacity when it is full; entries are never dropped,
// because events from a single peer must reach the handlers in the order they arrived.
type queue struct {
	mut       sync.Mutex
	entries   []any
	head      int
	tail      int
	readyChan chan struct{}
}

func newQueue(capacity uint) queue {
	if capacity == 0 {
		capacity = 1
	}
	return queue{
		entries:   make([]any, capacity),
		head:      -1,
		tail:      -1,
		readyChan: make(chan struct{}, 1),
	}
}

func (q *queue) push(entry any) {
	q.mut.Lock()
	defer q.mut.Unlock()

	pos := q.tail + 1
	if pos == len(q.entries) {
		pos = 0
	}
	if pos == q.head {
		q.grow()
		pos = q.tail + 1
	}
	q.entries[pos] = entry
	q.tail = pos

	if q.head == -1 {
		q.head = pos
	}

	select {
	case q.readyChan <- struct{}{}:
	default:
	}
}

// grow doubles the capacity of the buffer and moves the entries to the front.
// Must be called with the mutex held and only when the buffer is full.
func (q *queue) grow() {
	n := len(q.entries)
	entries := make([]any, 2*n)
	copied := copy(entries, q.entries[q.head:])
	copy(entries[copied:], q.entries[:q.head])
	q.entries = entries
	q.head = 0
	q.tail = n - 1
}

func (q *queue) pop() (entry any, ok bool) {
	q.mut.Lock()
	defer q.mut.Unlock()

	if q.head == -1 {
		return nil, false
	}

	entry = q.entries[q.head]
	q.entries[q.head] = nil

	if q.head == q.tail {
		q.head = -1
		q.tail = -1
	} else {
		q.head++
		if q.head == len(q.entries) {
			q.head = 0
		}
	}

	return entry, true
}

func (q *queue) len() int {
	q.mut.Lock()
	defer q.mut.Unlock()

	if q.head == -1 {
		return 0
	}

	if q.head <= q.tail {
		return q.tail - q.head + 1
	}

	return len(q.entries) - q.head + q.tail + 1
}

func (q *queue) ready() <-chan struct{} {
	return q.readyChan
}
