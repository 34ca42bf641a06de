// Package clocktest wraps a clockwork clock to record AfterFunc scheduling.
package clocktest

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock records every AfterFunc delay and tracks how many are still pending.
type Clock struct {
	clockwork.Clock

	mu     sync.Mutex
	armed  []time.Duration
	active int
}

// New wraps inner.
func New(inner clockwork.Clock) *Clock {
	return &Clock{Clock: inner}
}

// AfterFunc schedules f on the inner clock and records d.
// The delay is recorded once the inner timer exists, so a caller that saw it
// in Armed can advance a fake clock past it.
func (c *Clock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	c.mu.Lock()
	c.active++
	c.mu.Unlock()

	t := &timer{c: c}
	t.Timer = c.Clock.AfterFunc(d, func() {
		if t.settle() {
			f()
		}
	})

	c.mu.Lock()
	c.armed = append(c.armed, d)
	c.mu.Unlock()
	return t
}

// Armed returns every delay passed to AfterFunc, in order.
func (c *Clock) Armed() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.armed...)
}

// Active returns how many AfterFunc timers are neither stopped nor fired.
func (c *Clock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Reset forgets recorded delays. Active counts are kept.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = nil
}

type timer struct {
	clockwork.Timer
	c    *Clock
	done bool
}

func (t *timer) settle() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.c.active--
	return true
}

func (t *timer) Stop() bool {
	stopped := t.Timer.Stop()
	if stopped {
		t.settle()
	}
	return stopped
}
