package input

import (
	"testing"
	"time"
)

func TestInterlockOnDelay(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewInterlock(10*time.Second, 5500*time.Millisecond)

	l.Process(true, now)
	if l.Valid(now) {
		t.Error("should not be valid before on-delay")
	}
	if !l.Raw() {
		t.Error("expected raw engaged")
	}

	l.Process(true, now.Add(9*time.Second))
	if l.Valid(now.Add(9 * time.Second)) {
		t.Error("should not be valid at 9s")
	}

	l.Process(true, now.Add(10*time.Second))
	if !l.Valid(now.Add(10 * time.Second)) {
		t.Error("should be valid after on-delay")
	}
}

func TestInterlockOnDelayRestartsOnDrop(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewInterlock(10*time.Second, 5500*time.Millisecond)

	l.Process(true, now)
	l.Process(false, now.Add(5*time.Second))
	l.Process(true, now.Add(6*time.Second))
	l.Process(true, now.Add(12*time.Second))
	if l.Valid(now.Add(12 * time.Second)) {
		t.Error("on-delay should restart after a drop")
	}
	l.Process(true, now.Add(16*time.Second))
	if !l.Valid(now.Add(16 * time.Second)) {
		t.Error("expected valid 10s after re-engaging")
	}
}

func engagedInterlock(now time.Time) *Interlock {
	l := NewInterlock(10*time.Second, 5500*time.Millisecond)
	l.Process(true, now)
	l.Process(true, now.Add(10*time.Second))
	return l
}

func TestInterlockGrace(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := engagedInterlock(now)

	lost := now.Add(20 * time.Second)
	l.Process(false, lost)
	if !l.Valid(lost) {
		t.Error("should stay valid when the signal is first lost")
	}
	if !l.Valid(lost.Add(5 * time.Second)) {
		t.Error("should stay valid within grace")
	}
	if l.Valid(lost.Add(5500 * time.Millisecond)) {
		t.Error("should be invalid once grace has passed")
	}

	l.Process(false, lost.Add(6*time.Second))
	l.Process(true, lost.Add(7*time.Second))
	if l.Valid(lost.Add(7 * time.Second)) {
		t.Error("re-engaging after grace must wait for the on-delay")
	}
}

func TestInterlockReturnWithinGrace(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := engagedInterlock(now)

	l.Process(false, now.Add(20*time.Second))
	l.Process(true, now.Add(22*time.Second))
	if !l.Valid(now.Add(22 * time.Second)) {
		t.Error("signal back within grace should be valid immediately")
	}
	if !l.Valid(now.Add(60 * time.Second)) {
		t.Error("should stay valid while engaged")
	}
}
