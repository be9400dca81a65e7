package clock

import (
	"sort"
	"sync"
	"time"

	wallclock "github.com/benbjohnson/clock"
)

// Fake is a manually advanced clock backed by a wallclock.Mock. Advance
// steps the mock from one deadline to the next and waits for each callback
// to return, so timers armed by a callback fire within the same Advance.
type Fake struct {
	mock *wallclock.Mock

	mu     sync.Mutex
	timers map[*fakeTimer]struct{}
}

type fakeTimer struct {
	clock    *Fake
	timer    *wallclock.Timer
	deadline time.Time
	done     chan struct{}
}

func NewFake(now time.Time) *Fake {
	m := wallclock.NewMock()
	m.Set(now)
	return &Fake{mock: m, timers: make(map[*fakeTimer]struct{})}
}

func (c *Fake) Now() time.Time { return c.mock.Now() }

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{clock: c, deadline: c.mock.Now().Add(d), done: make(chan struct{})}
	c.mu.Lock()
	c.timers[t] = struct{}{}
	c.mu.Unlock()
	t.timer = c.mock.AfterFunc(d, func() {
		defer t.finish()
		f()
	})
	return t
}

// Pending returns the number of armed timers that have neither fired nor
// been stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d and fires every timer whose deadline
// has been reached, in deadline order.
func (c *Fake) Advance(d time.Duration) {
	target := c.mock.Now().Add(d)
	for {
		next := c.nextDue(target)
		if next == nil {
			c.mock.Set(target)
			return
		}
		c.mock.Set(next.deadline)
		<-next.done
	}
}

func (c *Fake) nextDue(target time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	due := make([]*fakeTimer, 0, len(c.timers))
	for t := range c.timers {
		if !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	return due[0]
}

func (t *fakeTimer) finish() {
	t.clock.mu.Lock()
	delete(t.clock.timers, t)
	t.clock.mu.Unlock()
	close(t.done)
}

func (t *fakeTimer) Stop() bool {
	if !t.timer.Stop() {
		return false
	}
	t.clock.mu.Lock()
	delete(t.clock.timers, t)
	t.clock.mu.Unlock()
	return true
}
