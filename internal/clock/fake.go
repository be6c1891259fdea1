package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually driven Clock.
//
// Callbacks registered with AfterFunc never run synchronously; they run from
// Advance/Set, in deadline order, with Now() reporting the callback's
// deadline. Callbacks armed while advancing fire too if their deadline falls
// inside the advanced window.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*fakeTimer
}

type fakeTimer struct {
	c  *Fake
	id uint64
	at time.Time
	f  func()
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	for i, w := range t.c.waiters {
		if w == t {
			t.c.waiters = append(t.c.waiters[:i], t.c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// NewFake returns a fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &fakeTimer{c: c, id: c.seq, at: c.now.Add(d), f: f}
	c.waiters = append(c.waiters, t)
	return t
}

// Pending reports how many callbacks are armed and not yet fired.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Advance moves the clock forward by d, firing due callbacks on the way.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.Set(target)
}

// Set moves the clock to t, firing due callbacks on the way. Moving
// backwards only changes Now().
func (c *Fake) Set(t time.Time) {
	for {
		c.mu.Lock()
		next := c.popDueLocked(t)
		if next == nil {
			c.now = t
			c.mu.Unlock()
			return
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

func (c *Fake) popDueLocked(until time.Time) *fakeTimer {
	if len(c.waiters) == 0 {
		return nil
	}
	sort.SliceStable(c.waiters, func(i, j int) bool {
		if c.waiters[i].at.Equal(c.waiters[j].at) {
			return c.waiters[i].id < c.waiters[j].id
		}
		return c.waiters[i].at.Before(c.waiters[j].at)
	})
	first := c.waiters[0]
	if first.at.After(until) {
		return nil
	}
	c.waiters = c.waiters[1:]
	return first
}
