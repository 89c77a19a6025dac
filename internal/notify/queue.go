package notify

import "sync"

// signalQueue is a thread-safe unbounded FIFO of signals.
//
// Publishers enqueue from any goroutine; the Bus Run loop dequeues. The
// signal channel (buffer 1) coalesces wakeups and is closed on Close so a
// waiting Run loop drains what is left and returns.
type signalQueue struct {
	mu      sync.Mutex
	signals []Signal
	closed  bool
	wake    chan struct{}
}

func newSignalQueue() *signalQueue {
	return &signalQueue{
		signals: make([]Signal, 0, 64),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue appends s. Returns false once the queue is closed.
func (q *signalQueue) Enqueue(s Signal) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.signals = append(q.signals, s)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front signal without blocking.
func (q *signalQueue) TryDequeue() (Signal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.signals) == 0 {
		return Signal{}, false
	}
	s := q.signals[0]
	// Release the slot so its Change and Err can be collected.
	q.signals[0] = Signal{}
	if len(q.signals) == 1 {
		q.signals = q.signals[:0]
	} else {
		q.signals = q.signals[1:]
	}
	return s, true
}

// Wait returns the wakeup channel; it is closed by Close.
func (q *signalQueue) Wait() <-chan struct{} {
	return q.wake
}

// Len returns the number of queued signals.
func (q *signalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.signals)
}

// Close stops further enqueues and wakes the consumer.
func (q *signalQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.wake)
}
