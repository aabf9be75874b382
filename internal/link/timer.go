package link

import "time"

// Timer is a restartable deadline timer used for T1 (retransmit/ack), T3
// (idle keepalive), and the ack-coalesce delay. Unlike a raw time.Timer it
// can be queried for remaining time and paused without losing that
// remaining time: T3 needs to pause, not clear, while a pager prompt is
// pending, resuming with its remaining time intact when the prompt clears.
type Timer struct {
	timeout  time.Duration
	deadline time.Time
	running  bool

	// paused holds the remaining duration while the timer is paused; its
	// value is meaningful only while isPaused is true.
	paused time.Duration
	isPaused bool
}

// NewTimer creates a stopped Timer with the given timeout.
func NewTimer(timeout time.Duration) *Timer {
	return &Timer{timeout: timeout}
}

// SetTimeout changes the timer's timeout for future Start calls.
func (t *Timer) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

// Start (re)starts the timer from now, using the configured timeout.
func (t *Timer) Start(now time.Time) {
	t.deadline = now.Add(t.timeout)
	t.running = true
	t.isPaused = false
}

// Stop stops the timer outright; a subsequent Start begins a fresh
// timeout, not a resumed one.
func (t *Timer) Stop() {
	t.running = false
	t.isPaused = false
}

// Pause suspends the timer, remembering how much time was left so Resume
// can continue it rather than restarting the full timeout.
func (t *Timer) Pause(now time.Time) {
	if !t.running {
		return
	}
	t.paused = t.Remaining(now)
	t.running = false
	t.isPaused = true
}

// Resume continues a paused timer with its remembered remaining time. It
// is a no-op if the timer was not paused.
func (t *Timer) Resume(now time.Time) {
	if !t.isPaused {
		return
	}
	t.deadline = now.Add(t.paused)
	t.running = true
	t.isPaused = false
}

// IsRunning reports whether the timer is counting down (false while
// stopped or paused).
func (t *Timer) IsRunning() bool {
	return t.running
}

// IsPaused reports whether the timer is paused (suspended, retaining
// remaining time).
func (t *Timer) IsPaused() bool {
	return t.isPaused
}

// HasExpired reports whether the timer is running and its deadline has
// passed.
func (t *Timer) HasExpired(now time.Time) bool {
	return t.running && !now.Before(t.deadline)
}

// Remaining returns the time left until expiry, zero if not running or
// already expired.
func (t *Timer) Remaining(now time.Time) time.Duration {
	if !t.running {
		return 0
	}
	d := t.deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Deadline returns the absolute expiry time, used by the session
// dispatcher to pick the next timer to wait on. The zero Time is returned
// when the timer is not running.
func (t *Timer) Deadline() time.Time {
	if !t.running {
		return time.Time{}
	}
	return t.deadline
}
