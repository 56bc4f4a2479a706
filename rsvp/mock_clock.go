package rsvp

import (
	"sort"
	"sync"
	"time"
)

// MockClock is a ClockSource under manual control. Time only moves when
// Advance is called, and due callbacks fire synchronously on the advancing
// goroutine in timeline order. It lives outside the test build so other
// packages can drive an Engine deterministically too.
type MockClock struct {
	mu       sync.Mutex
	now      time.Time
	interval time.Duration
	nextID   Handle
	pending  []mockEvent
}

type mockEvent struct {
	h  Handle
	at time.Time
	fn func(time.Time)
}

// NewMockClock starts a manual clock at the given instant.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start, interval: DefaultTickInterval}
}

// SetTickInterval changes the virtual frame period used by Schedule.
func (c *MockClock) SetTickInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.interval = d
	}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Schedule(fn func(time.Time)) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(c.now.Add(c.interval), fn)
}

func (c *MockClock) After(d time.Duration, fn func(time.Time)) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	return c.add(c.now.Add(d), fn)
}

func (c *MockClock) Cancel(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ev := range c.pending {
		if ev.h == h {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// add inserts an event keeping the queue sorted by fire time, FIFO among
// equals. Callers hold c.mu.
func (c *MockClock) add(at time.Time, fn func(time.Time)) Handle {
	c.nextID++
	ev := mockEvent{h: c.nextID, at: at, fn: fn}
	i := sort.Search(len(c.pending), func(j int) bool { return c.pending[j].at.After(at) })
	c.pending = append(c.pending, mockEvent{})
	copy(c.pending[i+1:], c.pending[i:])
	c.pending[i] = ev
	return ev.h
}

// Advance moves the clock forward by d, firing every callback that comes
// due in order. Work a callback schedules inside the window fires too
// before Advance returns.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		if len(c.pending) == 0 || c.pending[0].at.After(target) {
			break
		}
		ev := c.pending[0]
		c.pending = c.pending[1:]
		if ev.at.After(c.now) {
			c.now = ev.at
		}
		c.mu.Unlock()
		ev.fn(ev.at)
		c.mu.Lock()
	}
	if target.After(c.now) {
		c.now = target
	}
	c.mu.Unlock()
}

// Pending reports how many callbacks are queued.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
