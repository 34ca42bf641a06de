package realtime

import (
	"sync"

	v1 "github.com/Jerit-Baiju/caelium-admin/shared/contracts/realtime/v1"
)

// Subscription is one consumer of channel frames.
//
// Send is never closed: Publish may race with Close, and a send on a closed
// channel panics. done tells the delivery goroutine to stop.
type Subscription struct {
	Type string
	Send chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscription constructs a Subscription with a bounded queue.
func NewSubscription(typ string, queue int) *Subscription {
	if queue <= 0 {
		queue = defaultSubscriberQueue
	}
	return &Subscription{
		Type: typ,
		Send: make(chan v1.Envelope, queue),
		done: make(chan struct{}),
	}
}

// Done is closed once the subscription is shutting down.
func (s *Subscription) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Close stops delivery (idempotent). Frames still queued are discarded.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Subscription) offer(e v1.Envelope) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.Send <- e:
		return true
	default:
		return false
	}
}

func (s *Subscription) run(fn func(v1.Envelope)) {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.Send:
			select {
			case <-s.done:
				return
			default:
			}
			fn(e)
		}
	}
}
