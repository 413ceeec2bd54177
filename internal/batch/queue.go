package batch

import "sync"

// queue is an unbounded multi-producer/multi-consumer FIFO of pending
// batches. Workers consume it; the retry policy is also a producer,
// re-enqueuing backed-off and re-split batches instead of recursing.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Batch
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends b and wakes one waiting worker. Pushing to a closed queue is
// a no-op; by then every batch has reached a terminal state.
func (q *queue) Push(b *Batch) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, b)
	q.cond.Signal()
}

// Pop blocks until a batch is available or the queue is closed. The second
// return value is false once the queue is closed and drained.
func (q *queue) Pop() (*Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items = q.items[1:]
	return b, true
}

// Close wakes all waiting workers; subsequent Pops drain remaining items
// then report closure.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
