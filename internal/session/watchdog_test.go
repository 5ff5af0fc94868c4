package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchdogFires(t *testing.T) {
	w := NewWatchdog()
	fired := make(chan struct{})

	w.Arm("r1", 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}
	if w.Armed("r1") {
		t.Error("fired timer should no longer be armed")
	}
}

func TestWatchdogDisarm(t *testing.T) {
	w := NewWatchdog()
	var fired atomic.Bool

	w.Arm("r1", 20*time.Millisecond, func() { fired.Store(true) })
	if !w.Disarm("r1") {
		t.Error("Disarm() = false for armed tenant")
	}
	if w.Disarm("r1") {
		t.Error("Disarm() = true for already disarmed tenant")
	}

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Error("disarmed timer fired")
	}
}

func TestWatchdogArmReplaces(t *testing.T) {
	w := NewWatchdog()
	var first, second atomic.Int32

	t1 := w.Arm("r1", 20*time.Millisecond, func() { first.Add(1) })
	t2 := w.Arm("r1", 40*time.Millisecond, func() { second.Add(1) })
	if t1 == t2 {
		t.Error("Arm() should return distinct tokens")
	}

	time.Sleep(100 * time.Millisecond)
	if first.Load() != 0 {
		t.Error("replaced timer fired")
	}
	if second.Load() != 1 {
		t.Errorf("replacement fired %d times, want 1", second.Load())
	}
}

func TestWatchdogStaleClaim(t *testing.T) {
	w := NewWatchdog()
	token := w.Arm("r1", time.Hour, func() {})
	w.Arm("r1", time.Hour, func() {})

	if w.claim("r1", token) {
		t.Error("claim() succeeded with a superseded token")
	}
	w.Stop()
	if w.Armed("r1") {
		t.Error("Stop() left a timer armed")
	}
}
