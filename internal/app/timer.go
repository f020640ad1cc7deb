package app

import (
	"sync"
	"time"
)

// TimerStatus is the timer's tagged state; illegal flag combinations such as
// "running and paused" are unrepresentable.
type TimerStatus int

const (
	TimerIdle TimerStatus = iota
	TimerRunning
	TimerPaused
	TimerExpired
)

func (s TimerStatus) String() string {
	switch s {
	case TimerRunning:
		return "running"
	case TimerPaused:
		return "paused"
	case TimerExpired:
		return "expired"
	default:
		return "idle"
	}
}

// Timer is the per-question countdown. It decrements only while running, and
// every tick carries the generation it was armed with so a tick scheduled
// for an earlier question or a reset session is dropped silently.
type Timer struct {
	interval time.Duration
	onExpire func(generation uint64)

	mu         sync.Mutex
	status     TimerStatus
	remaining  int
	generation uint64
	stop       chan struct{}
}

func NewTimer(onExpire func(generation uint64)) *Timer {
	return newTimerWithInterval(time.Second, onExpire)
}

// newTimerWithInterval is test-only for fast ticks.
func newTimerWithInterval(interval time.Duration, onExpire func(generation uint64)) *Timer {
	return &Timer{interval: interval, onExpire: onExpire}
}

// Arm resets the countdown to seconds and starts it under the given
// generation. A non-positive seconds leaves the timer inert.
func (t *Timer) Arm(seconds int, generation uint64) {
	t.mu.Lock()
	t.stopLocked()
	t.generation = generation
	if seconds <= 0 {
		t.mu.Unlock()
		return
	}
	t.status = TimerRunning
	t.remaining = seconds
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	go t.run(generation, stop)
}

func (t *Timer) run(generation uint64, stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if t.tick(generation) {
				return
			}
		}
	}
}

// tick advances the countdown by one interval. It reports true when the
// tick loop should terminate.
func (t *Timer) tick(generation uint64) bool {
	t.mu.Lock()
	if generation != t.generation || t.status == TimerIdle || t.status == TimerExpired {
		t.mu.Unlock()
		return true
	}
	if t.status == TimerPaused {
		t.mu.Unlock()
		return false
	}
	t.remaining--
	if t.remaining > 0 {
		t.mu.Unlock()
		return false
	}
	t.remaining = 0
	t.status = TimerExpired
	onExpire := t.onExpire
	t.mu.Unlock()

	// Reaching zero is an observable event, not a silent state: the owner
	// routes it through the same submission path as a manual answer.
	if onExpire != nil {
		onExpire(generation)
	}
	return true
}

// Pause suspends the countdown without disturbing the session state.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == TimerRunning {
		t.status = TimerPaused
	}
}

// Resume continues a paused countdown.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == TimerPaused {
		t.status = TimerRunning
	}
}

// Stop forces the timer back to inert and cancels the tick loop.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	t.status = TimerIdle
	t.remaining = 0
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

// Remaining returns the seconds left on the countdown.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Status returns the timer's current state.
func (t *Timer) Status() TimerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
