package events

import "sync"

// Topic is a single in-process publish/subscribe channel. Publish never
// blocks; every subscriber receives payloads asynchronously, in publish
// order. There is no cross-topic ordering guarantee.
type Topic[T any] struct {
	mu   sync.Mutex
	subs []*subscription[T]
}

type subscription[T any] struct {
	mu      sync.Mutex
	pending []T
	wake    chan struct{}
	done    chan struct{}
}

// Subscribe registers a handler that is invoked for every payload published
// after this call. Handlers run on a dedicated goroutine per subscription, so
// a handler may safely call back into the publishing component. The returned
// function cancels the subscription.
func (t *Topic[T]) Subscribe(handler func(T)) func() {
	sub := &subscription[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	go sub.run(handler)

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			for i, s := range t.subs {
				if s == sub {
					t.subs = append(t.subs[:i], t.subs[i+1:]...)
					break
				}
			}
			t.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish delivers the payload to all current subscribers. It never blocks
// the caller; delivery happens on the subscribers' goroutines.
func (t *Topic[T]) Publish(payload T) {
	t.mu.Lock()
	subs := make([]*subscription[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, sub := range subs {
		sub.enqueue(payload)
	}
}

func (s *subscription[T]) enqueue(payload T) {
	s.mu.Lock()
	s.pending = append(s.pending, payload)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription[T]) run(handler func(T)) {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			payload := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			handler(payload)
		}
	}
}
