package app

import (
	"testing"
	"time"
)

// newManualTimer returns a timer whose ticker is effectively inert so tests
// can drive tick() by hand.
func newManualTimer(onExpire func(uint64)) *Timer {
	return newTimerWithInterval(time.Hour, onExpire)
}

func TestTimerCountsDownAndExpiresOnce(t *testing.T) {
	var fired []uint64
	timer := newManualTimer(func(gen uint64) { fired = append(fired, gen) })

	timer.Arm(3, 7)
	if timer.Status() != TimerRunning || timer.Remaining() != 3 {
		t.Fatalf("expected running at 3, got %v %d", timer.Status(), timer.Remaining())
	}

	timer.tick(7)
	timer.tick(7)
	if timer.Remaining() != 1 || len(fired) != 0 {
		t.Fatalf("expected 1 remaining and no expiry, got %d remaining, fired=%v", timer.Remaining(), fired)
	}

	if done := timer.tick(7); !done {
		t.Fatalf("expected expiry tick to end the loop")
	}
	if timer.Status() != TimerExpired {
		t.Fatalf("expected expired, got %v", timer.Status())
	}
	if len(fired) != 1 || fired[0] != 7 {
		t.Fatalf("expected one expiry for generation 7, got %v", fired)
	}

	// Further ticks after expiry are inert.
	if done := timer.tick(7); !done {
		t.Fatalf("expected post-expiry tick to end the loop")
	}
	if len(fired) != 1 {
		t.Fatalf("expected no second expiry, got %v", fired)
	}
}

func TestTimerPauseSkipsDecrement(t *testing.T) {
	timer := newManualTimer(nil)
	timer.Arm(5, 1)

	timer.Pause()
	if timer.Status() != TimerPaused {
		t.Fatalf("expected paused, got %v", timer.Status())
	}
	timer.tick(1)
	timer.tick(1)
	if timer.Remaining() != 5 {
		t.Fatalf("expected paused timer untouched, got %d", timer.Remaining())
	}

	timer.Resume()
	timer.tick(1)
	if timer.Remaining() != 4 {
		t.Fatalf("expected resume to decrement, got %d", timer.Remaining())
	}
}

func TestTimerStaleGenerationTickDropped(t *testing.T) {
	expired := 0
	timer := newManualTimer(func(uint64) { expired++ })
	timer.Arm(1, 1)
	timer.Arm(10, 2) // re-armed for the next question

	if done := timer.tick(1); !done {
		t.Fatalf("expected stale tick to terminate its loop")
	}
	if expired != 0 {
		t.Fatalf("stale tick must not expire the new countdown")
	}
	if timer.Remaining() != 10 {
		t.Fatalf("expected fresh countdown untouched, got %d", timer.Remaining())
	}
}

func TestTimerStopForcesIdle(t *testing.T) {
	timer := newManualTimer(nil)
	timer.Arm(30, 1)
	timer.Stop()
	if timer.Status() != TimerIdle || timer.Remaining() != 0 {
		t.Fatalf("expected idle after stop, got %v %d", timer.Status(), timer.Remaining())
	}
	if done := timer.tick(1); !done {
		t.Fatalf("expected tick after stop to terminate")
	}
}

func TestTimerZeroSecondsStaysInert(t *testing.T) {
	timer := newManualTimer(nil)
	timer.Arm(0, 1)
	if timer.Status() != TimerIdle {
		t.Fatalf("expected inert timer for zero seconds, got %v", timer.Status())
	}
}
