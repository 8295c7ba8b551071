package player

import (
	"sync"
	"time"

	"github.com/SmitUplenchwar2687/sockreplay/internal/clock"
)

// timerSet tracks every pending callback of one session. Once stopAll has
// run, schedule refuses new timers and callbacks that were already due
// but not yet started become no-ops.
type timerSet struct {
	mu      sync.Mutex
	clock   clock.Clock
	next    uint64
	timers  map[uint64]*clock.Timer
	stopped bool
}

func newTimerSet(clk clock.Clock) *timerSet {
	return &timerSet{clock: clk, timers: make(map[uint64]*clock.Timer)}
}

// schedule arms f after d. It returns 0 when the set is stopped.
func (ts *timerSet) schedule(d time.Duration, f func()) uint64 {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.stopped {
		return 0
	}
	ts.next++
	id := ts.next
	ts.timers[id] = ts.clock.AfterFunc(d, func() {
		ts.mu.Lock()
		if ts.stopped {
			ts.mu.Unlock()
			return
		}
		delete(ts.timers, id)
		ts.mu.Unlock()
		f()
	})
	return id
}

func (ts *timerSet) cancel(id uint64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[id]; ok {
		t.Stop()
		delete(ts.timers, id)
	}
}

func (ts *timerSet) stopAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.stopped = true
	for id, t := range ts.timers {
		t.Stop()
		delete(ts.timers, id)
	}
}

func (ts *timerSet) len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}
