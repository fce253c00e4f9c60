package connection

import (
	"sync"
)

// outboundFrame is one text frame waiting for the writer goroutine.
type outboundFrame struct {
	data []byte
	kind string     // "send" or "ack", for logs
	done chan error // Optional, receives the write result
}

func (f *outboundFrame) finish(err error) {
	if f.done != nil {
		f.done <- err
	}
}

// outboundQueue is an unbounded FIFO of frames for a single handle. It
// doubles its capacity when it reaches 70% full so producers never block
// on a slow socket.
type outboundQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []*outboundFrame
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	enqueued    int64
	dequeued    int64
	resizeCount int
}

func newOutboundQueue(initialCapacity int) *outboundQueue {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &outboundQueue{
		buf:      make([]*outboundFrame, initialCapacity),
		capacity: initialCapacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends f. Returns false once the queue is closed.
func (q *outboundQueue) push(f *outboundFrame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = f
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.enqueued++

	q.cond.Signal()
	return true
}

// pop removes the oldest frame, blocking until one is available.
// Frames pushed before close are still returned; after that pop
// returns false.
func (q *outboundQueue) pop() (*outboundFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		return nil, false
	}

	f := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.dequeued++

	return f, true
}

// close stops accepting frames and wakes the writer.
func (q *outboundQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

func (q *outboundQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *outboundQueue) stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Pending:     q.count,
		Capacity:    q.capacity,
		Enqueued:    q.enqueued,
		Written:     q.dequeued,
		ResizeCount: q.resizeCount,
	}
}

// QueueStats contains outbound queue statistics for the active connection.
type QueueStats struct {
	Pending     int
	Capacity    int
	Enqueued    int64
	Written     int64
	ResizeCount int
}

// grow doubles the capacity. Must be called with lock held.
func (q *outboundQueue) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]*outboundFrame, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
	q.resizeCount++
}
