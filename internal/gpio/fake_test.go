package gpio

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	samples := []Sample{
		{Button: true, Interlock: false},
		{Button: false, Interlock: true},
	}

	f := NewFakeReader(samples)

	button, interlock, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if button != true || interlock != false {
		t.Errorf("sample 0: expected (true, false), got (%v, %v)", button, interlock)
	}

	button, interlock, _ = f.Read()
	if button != false || interlock != true {
		t.Errorf("sample 1: expected (false, true), got (%v, %v)", button, interlock)
	}

	// Third read should repeat last sample
	button, interlock, _ = f.Read()
	if button != false || interlock != true {
		t.Errorf("sample 2 (repeat): expected (false, true), got (%v, %v)", button, interlock)
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader(nil)

	if _, _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]Sample{{Button: true, Interlock: true}})
	f.ReadError = errors.New("simulated error")

	_, _, err := f.Read()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderSetAndReset(t *testing.T) {
	f := NewFakeReader([]Sample{{Button: true}, {Interlock: true}})
	f.Read()
	f.Reset()

	button, _, _ := f.Read()
	if !button {
		t.Error("after reset: expected first sample again")
	}

	f.Set(Sample{Interlock: true})
	button, interlock, _ := f.Read()
	if button || !interlock {
		t.Errorf("after set: expected (false, true), got (%v, %v)", button, interlock)
	}
}

func TestFakeReaderClose(t *testing.T) {
	f := NewFakeReader([]Sample{{}})
	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakeDriverFiltersMissingChannels(t *testing.T) {
	d := NewFakeDriver()
	d.Present[1] = false

	if d.Installed(1) || !d.Installed(0) || d.Installed(Channels) {
		t.Error("unexpected installed channels")
	}

	if err := d.Set(0x0F); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.Current(); got != 0x0D {
		t.Errorf("expected 0x0D, got %#x", got)
	}
}

func TestFakeDriverCloseReleases(t *testing.T) {
	d := NewFakeDriver()
	d.Set(0x0F)
	d.Close()
	if d.Current() != 0 || !d.Closed {
		t.Error("expected outputs released on close")
	}
}

func TestFakeDriverError(t *testing.T) {
	d := NewFakeDriver()
	d.SetError = errors.New("bus error")
	if err := d.Set(1); err == nil {
		t.Error("expected error")
	}
	if d.Current() != 0 {
		t.Error("failed set must not be recorded")
	}
}
