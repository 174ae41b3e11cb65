package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted front panel values.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted values to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// Sample represents a single front panel reading (already in logical form).
type Sample struct {
	Button    bool // true = pressed
	Interlock bool // true = engaged
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample.Button, sample.Interlock, nil
}

// Set replaces the script with a single repeated sample.
func (f *FakeReader) Set(s Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples = []Sample{s}
	f.index = 0
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Closed = false
}

// FakeDriver records channel output masks.
type FakeDriver struct {
	mu sync.Mutex

	// Present marks installed channels.
	Present [Channels]bool

	// Masks contains every mask applied, after filtering.
	Masks []uint8

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDriver creates a FakeDriver with all channels installed.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{Present: [Channels]bool{true, true, true, true}}
}

func (f *FakeDriver) Installed(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return i >= 0 && i < Channels && f.Present[i]
}

// Set records the mask filtered to installed channels.
func (f *FakeDriver) Set(mask uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	for i := 0; i < Channels; i++ {
		if !f.Present[i] {
			mask &^= 1 << i
		}
	}
	f.Masks = append(f.Masks, mask)
	return nil
}

// Current returns the last applied mask, or 0.
func (f *FakeDriver) Current() uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Masks) == 0 {
		return 0
	}
	return f.Masks[len(f.Masks)-1]
}

// Close de-energises all channels and marks the driver closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Masks = append(f.Masks, 0)
	f.Closed = true
	return nil
}
