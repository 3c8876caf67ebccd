package watch

import (
	"sync"
	"time"
)

// scheduleFunc schedules fn after d and returns a cancel. Injectable so
// throttle behavior is testable without real timers.
type scheduleFunc func(d time.Duration, fn func()) (cancel func())

func realSchedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// throttle is a leading-edge rate limiter with a single trailing call: the
// first call inside an idle window runs immediately; calls during the
// window replace the one pending trailing call, which runs at window end.
type throttle struct {
	interval time.Duration
	clock    func() time.Time
	schedule scheduleFunc

	mu       sync.Mutex
	last     time.Time
	trailing func()
	cancel   func()
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{
		interval: interval,
		clock:    time.Now,
		schedule: realSchedule,
	}
}

// Do runs fn now when outside the throttle window, otherwise records it as
// the pending trailing call. Never more than one trailing call is pending.
func (t *throttle) Do(fn func()) {
	if t.interval <= 0 {
		fn()
		return
	}

	t.mu.Lock()
	now := t.clock()
	elapsed := now.Sub(t.last)
	if elapsed >= t.interval {
		t.last = now
		t.mu.Unlock()
		fn()
		return
	}

	t.trailing = fn
	if t.cancel == nil {
		t.cancel = t.schedule(t.interval-elapsed, t.fireTrailing)
	}
	t.mu.Unlock()
}

func (t *throttle) fireTrailing() {
	t.mu.Lock()
	fn := t.trailing
	t.trailing = nil
	t.cancel = nil
	t.last = t.clock()
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Stop drops any pending trailing call.
func (t *throttle) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.trailing = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
