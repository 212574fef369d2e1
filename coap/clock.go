package coap

import (
	"sort"
	"time"
)

// CancelFunc cancels a scheduled callback. Calling it after the callback
// has already fired is a no-op.
type CancelFunc func()

// Clock supplies monotonic time and scheduled callbacks to every timing
// component (Transaction, Exchange, BlockwiseRequest). Nothing in this
// package may read wall-clock time directly; the clock is always
// injected so tests can drive the whole dispatch loop deterministically.
type Clock interface {
	Now() time.Time
	// Schedule arranges for cb to run after d has elapsed. The returned
	// CancelFunc prevents the callback from firing if called before d
	// elapses.
	Schedule(d time.Duration, cb func()) CancelFunc
}

// SteadyClock is the production Clock, backed by the Go runtime timer
// wheel.
type SteadyClock struct{}

func NewSteadyClock() Clock { return SteadyClock{} }

func (SteadyClock) Now() time.Time { return time.Now() }

func (SteadyClock) Schedule(d time.Duration, cb func()) CancelFunc {
	t := time.AfterFunc(d, cb)
	return func() { t.Stop() }
}

// VirtualClock is a manually-driven Clock for deterministic tests. Time
// only moves when Advance is called; scheduled callbacks fire
// synchronously, in deadline order, on the caller's goroutine. This
// mirrors the single dispatch-loop model: nothing here spawns a
// goroutine, so callback ordering is exactly reproducible.
type VirtualClock struct {
	now     time.Time
	timers  []*virtualTimer
	seq     uint64
}

type virtualTimer struct {
	deadline time.Time
	seq      uint64 // tie-breaker preserving schedule order
	cb       func()
	fired    bool
	canceled bool
}

// NewVirtualClock creates a VirtualClock starting at the given epoch.
// Tests that don't care about the absolute value typically pass
// time.Unix(0, 0) or time.Now().
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time { return c.now }

func (c *VirtualClock) Schedule(d time.Duration, cb func()) CancelFunc {
	t := &virtualTimer{deadline: c.now.Add(d), seq: c.seq, cb: cb}
	c.seq++
	c.timers = append(c.timers, t)
	return func() { t.canceled = true }
}

// Advance moves the clock forward by d, firing every timer whose
// deadline has been reached, in deadline order (ties broken by
// schedule order). A callback firing during Advance may itself
// schedule new timers; those are eligible to fire within the same
// Advance call if their deadline still falls within the advanced
// window.
func (c *VirtualClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		due := c.dueTimers(target)
		if len(due) == 0 {
			break
		}
		// Advance "now" to the earliest due deadline so Now() observed
		// from within a callback reflects the time it actually fired.
		c.now = due[0].deadline
		for _, t := range due {
			if t.canceled || t.fired {
				continue
			}
			t.fired = true
			t.cb()
		}
		c.compact()
	}
	if c.now.Before(target) {
		c.now = target
	}
}

// dueTimers returns unfired, uncanceled timers with deadline <= target,
// sorted by (deadline, seq), restricted to the earliest deadline bucket
// so callbacks scheduled during firing are picked up incrementally.
func (c *VirtualClock) dueTimers(target time.Time) []*virtualTimer {
	var due []*virtualTimer
	for _, t := range c.timers {
		if t.fired || t.canceled {
			continue
		}
		if !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	earliest := due[0].deadline
	cut := 0
	for cut < len(due) && due[cut].deadline.Equal(earliest) {
		cut++
	}
	return due[:cut]
}

func (c *VirtualClock) compact() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.fired && !t.canceled {
			live = append(live, t)
		}
	}
	c.timers = live
}
