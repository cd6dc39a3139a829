package journal

import "sync"

// Queue is an unbounded FIFO ring that doubles its capacity when full.
// Push never blocks, so OnMessage handlers never stall the socket reader.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int // read position
	count  int
	closed bool

	// Stats
	pushed  int64
	popped  int64
	resizes int
}

// NewQueue creates a queue with the given initial capacity.
func NewQueue[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &Queue[T]{buf: make([]T, initialCapacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item. It returns false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.count == len(q.buf) {
		q.grow()
	}

	q.buf[(q.head+q.count)%len(q.buf)] = item
	q.count++
	q.pushed++

	q.cond.Signal()
	return true
}

// Pop removes the oldest item, blocking until one is available. After Close
// it keeps returning queued items, then the zero value and false.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// DrainTo removes up to max items (all when max <= 0) without blocking.
func (q *Queue[T]) DrainTo(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = q.take()
	}
	return out
}

// Close stops accepting pushes and wakes blocked readers.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Len      int
	Capacity int
	Pushed   int64
	Popped   int64
	Resizes  int
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:      q.count,
		Capacity: len(q.buf),
		Pushed:   q.pushed,
		Popped:   q.popped,
		Resizes:  q.resizes,
	}
}

// take pops the head item. Must be called with lock held and count > 0.
func (q *Queue[T]) take() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.popped++
	return item
}

// grow doubles the capacity, unwrapping items to the front. Must be called
// with lock held.
func (q *Queue[T]) grow() {
	next := make([]T, 2*len(q.buf))
	n := copy(next, q.buf[q.head:])
	copy(next[n:], q.buf[:q.head])

	q.buf = next
	q.head = 0
	q.resizes++
}
