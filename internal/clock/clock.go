package clock

import "time"

// Clock abstracts time so replay timers work with both real and virtual time.
// Everything in the player that waits or schedules goes through this
// interface instead of the time package.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
	// After returns a channel that receives the current time after duration d.
	After(d time.Duration) <-chan time.Time
	// AfterFunc calls f once duration d has elapsed. The returned Timer
	// cancels the pending call with Stop.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable scheduled callback.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. It returns true if the call stops
// the timer, false if the timer has already fired or been stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// RealClock delegates to the standard time package.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (c *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (c *RealClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}
