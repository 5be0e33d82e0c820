package fsm

import "sync"

// mailbox backs the completion channel: an unbounded multi-producer,
// single-consumer queue. Sends never block, so inline runners cannot deadlock
// against a full buffer.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
}

// sender is the producer half. It is cheap to clone and every job gets its own.
type sender[T any] struct {
	box *mailbox[T]
}

// receiver is the consumer half. A machine owns exactly one and never shares it.
type receiver[T any] struct {
	box *mailbox[T]
}

func newChannel[T any]() (sender[T], *receiver[T]) {
	box := &mailbox[T]{}
	return sender[T]{box: box}, &receiver[T]{box: box}
}

func (s sender[T]) clone() sender[T] {
	return sender[T]{box: s.box}
}

// send queues v. It fails only after the receiver was closed.
func (s sender[T]) send(v T) error {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()

	if s.box.closed {
		return ErrChannelClosed
	}
	s.box.items = append(s.box.items, v)
	return nil
}

// tryRecv takes the oldest queued value without blocking
func (r *receiver[T]) tryRecv() (T, bool) {
	r.box.mu.Lock()
	defer r.box.mu.Unlock()

	var zero T
	if len(r.box.items) == 0 {
		return zero, false
	}
	v := r.box.items[0]
	r.box.items[0] = zero
	r.box.items = r.box.items[1:]
	return v, true
}

func (r *receiver[T]) len() int {
	r.box.mu.Lock()
	defer r.box.mu.Unlock()
	return len(r.box.items)
}

// close drops queued values and makes further sends fail
func (r *receiver[T]) close() {
	r.box.mu.Lock()
	defer r.box.mu.Unlock()
	r.box.closed = true
	r.box.items = nil
}
