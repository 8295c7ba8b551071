package clock

import (
	"sort"
	"sync"
	"time"
)

// VirtualClock is a controllable clock for deterministic replay tests.
// Time only moves when Advance or Set is called.
//
// AfterFunc callbacks run synchronously inside Advance/Set, in deadline
// order, without the clock's lock held, so a callback may schedule further
// timers. A callback scheduled with a non-positive duration is due
// immediately and fires on the next Advance (Advance(0) is enough).
//
// Thread-safe for concurrent use.
type VirtualClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time // After waiters
	fn       func()         // AfterFunc waiters
	stopped  bool
	fired    bool
}

// NewVirtualClock creates a VirtualClock starting at the given time.
func NewVirtualClock(start time.Time) *VirtualClock {
	c := &VirtualClock{
		current: start,
	}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Since returns the virtual duration elapsed since t.
func (c *VirtualClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Sub(t)
}

// After returns a channel that receives the virtual time once the clock
// has advanced past the current time plus d. If d is zero or negative the
// channel fires immediately.
func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}

	c.waiters = append(c.waiters, &waiter{
		deadline: c.current.Add(d),
		ch:       ch,
	})
	c.changed.Broadcast()
	return ch
}

// AfterFunc schedules f to run once the clock reaches now+d.
func (c *VirtualClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d < 0 {
		d = 0
	}
	w := &waiter{
		deadline: c.current.Add(d),
		fn:       f,
	}
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if w.stopped || w.fired {
				return false
			}
			w.stopped = true
			c.changed.Broadcast()
			return true
		},
	}
}

// Advance moves the virtual clock forward by the given duration and fires
// every waiter whose deadline has been reached.
// Panics if d is negative.
func (c *VirtualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: cannot advance by negative duration")
	}

	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	c.fire(target)
}

// Set sets the virtual clock to an exact time and fires every waiter whose
// deadline has been reached.
// Panics if t is before the current time.
func (c *VirtualClock) Set(t time.Time) {
	c.mu.Lock()
	if t.Before(c.current) {
		c.mu.Unlock()
		panic("clock: cannot set time to the past")
	}
	c.current = t
	c.mu.Unlock()

	c.fire(t)
}

// PendingCount returns the number of timers and After waiters that have
// neither fired nor been stopped.
func (c *VirtualClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

// WaitForTimers blocks until at least n waiters are pending. It closes the
// race between a goroutine arming a timer and a test advancing the clock.
func (c *VirtualClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

func (c *VirtualClock) pendingLocked() int {
	n := 0
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}

// fire runs expired waiters until none remain at or before target. Callbacks
// may register new waiters that are already due; the loop picks those up.
func (c *VirtualClock) fire(target time.Time) {
	for {
		due := c.collectExpired(target)
		if len(due) == 0 {
			return
		}
		sort.SliceStable(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})
		for _, w := range due {
			if w.fn != nil {
				w.fn()
				continue
			}
			select {
			case w.ch <- target:
			default:
			}
		}
	}
}

// collectExpired removes due waiters from the pending list and marks them
// fired. Stopped waiters are dropped.
func (c *VirtualClock) collectExpired(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due []*waiter
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		switch {
		case w.stopped:
		case !w.deadline.After(target):
			w.fired = true
			due = append(due, w)
		default:
			remaining = append(remaining, w)
		}
	}
	for i := len(remaining); i < len(c.waiters); i++ {
		c.waiters[i] = nil
	}
	c.waiters = remaining
	if len(due) > 0 {
		c.changed.Broadcast()
	}
	return due
}
