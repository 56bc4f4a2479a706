package rsvp

import (
	"sync"
	"time"
)

// Handle identifies a pending clock callback. The zero Handle is never
// issued.
type Handle uint64

// ClockSource is the engine's only notion of time. Schedule requests a
// callback at the next tick boundary and After at a fixed delay; both
// return a Handle that Cancel accepts. Callbacks run on the clock's own
// goroutine and receive the fire time.
//
// TimerClock is the production implementation; MockClock advances time by
// hand for deterministic tests.
type ClockSource interface {
	Now() time.Time
	Schedule(fn func(now time.Time)) Handle
	After(d time.Duration, fn func(now time.Time)) Handle
	Cancel(h Handle)
}

// DefaultTickInterval is the tick period of TimerClock's Schedule
// callbacks.
const DefaultTickInterval = 33 * time.Millisecond

// TimerClock drives callbacks off the runtime timer heap.
type TimerClock struct {
	mu       sync.Mutex
	interval time.Duration
	nextID   Handle
	timers   map[Handle]*time.Timer
}

// NewTimerClock returns a clock whose Schedule callbacks tick every
// interval; anything below a millisecond selects DefaultTickInterval.
func NewTimerClock(interval time.Duration) *TimerClock {
	if interval < time.Millisecond {
		interval = DefaultTickInterval
	}
	return &TimerClock{
		interval: interval,
		timers:   make(map[Handle]*time.Timer),
	}
}

func (c *TimerClock) Now() time.Time { return time.Now() }

// Schedule fires fn after one tick interval.
func (c *TimerClock) Schedule(fn func(time.Time)) Handle {
	return c.After(c.interval, fn)
}

// After fires fn once after d.
func (c *TimerClock) After(d time.Duration, fn func(time.Time)) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	h := c.nextID
	c.timers[h] = time.AfterFunc(d, func() {
		c.mu.Lock()
		delete(c.timers, h)
		c.mu.Unlock()
		fn(time.Now())
	})
	return h
}

// Cancel stops a pending callback. Cancelation is best effort: a callback
// the runtime has already started may still run, so consumers recheck the
// handle they keyed the work to.
func (c *TimerClock) Cancel(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[h]; ok {
		t.Stop()
		delete(c.timers, h)
	}
}
