package veil

// Signal is an ordered publish/subscribe channel. Subscribers are invoked in
// subscription order, at most once per emitted event. It replaces ad hoc
// callback arrays so event ordering is a tested guarantee rather than an
// accident of append order.
//
// Signal is not safe for concurrent use; like everything in this package it
// assumes the single-threaded frame turn (see package docs).
type Signal[T any] struct {
	subs    []signalSub[T]
	nextID  int
	scratch []int // reused id snapshot, avoids per-emit allocation
}

type signalSub[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a cancel function. Cancel is idempotent
// and safe to call during an Emit in progress; the subscriber will not be
// invoked again after cancellation.
func (s *Signal[T]) Subscribe(fn func(T)) (cancel func()) {
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, signalSub[T]{id: id, fn: fn})
	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers v to every current subscriber in subscription order.
// Subscribers added during delivery do not receive the in-flight event;
// subscribers cancelled during delivery are skipped. Reentrant Emit on the
// same Signal is not supported.
func (s *Signal[T]) Emit(v T) {
	// Snapshot the ids, not the slice: a subscriber cancelled mid-emit must
	// not be called even though it was present at snapshot time.
	s.scratch = s.scratch[:0]
	for _, sub := range s.subs {
		s.scratch = append(s.scratch, sub.id)
	}
	for _, id := range s.scratch {
		for _, sub := range s.subs {
			if sub.id == id {
				sub.fn(v)
				break
			}
		}
	}
}

// Len returns the current subscriber count.
func (s *Signal[T]) Len() int {
	return len(s.subs)
}
