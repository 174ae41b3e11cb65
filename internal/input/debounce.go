// Package input turns raw, noisy digital inputs into the signals the session
// engine consumes: debounced levels, decoded button gestures, interlock
// validity with grace, and test-and-clear edge latches.
// This package has NO external dependencies (no GPIO, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package input

import "time"

// Debouncer tracks one digital signal and reports debounced transitions.
type Debouncer struct {
	duration time.Duration

	// Current stable (debounced) level
	stable bool
	// Pending level during debounce
	pending    bool
	hasPending bool
	// Time when pending level was first observed
	pendingSince time.Time
	// Whether we have established a baseline
	baselined bool
}

// NewDebouncer creates a debouncer that accepts a level once it has held for
// duration.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Update feeds a raw sample and reports whether the stable level changed.
// No change is reported until the first baseline is established.
func (d *Debouncer) Update(raw bool, now time.Time) bool {
	if !d.baselined {
		if !d.hasPending || d.pending != raw {
			// Start observing, or restart on change
			d.pending = raw
			d.hasPending = true
			d.pendingSince = now
		}
		if now.Sub(d.pendingSince) >= d.duration {
			d.stable = raw
			d.baselined = true
			d.hasPending = false
		}
		return false
	}

	if raw == d.stable {
		d.hasPending = false
		return false
	}

	if !d.hasPending || d.pending != raw {
		d.pending = raw
		d.hasPending = true
		d.pendingSince = now
	}

	if now.Sub(d.pendingSince) >= d.duration {
		d.stable = raw
		d.hasPending = false
		return true
	}
	return false
}

// Stable returns the current debounced level.
func (d *Debouncer) Stable() bool {
	return d.stable
}

// Baselined returns whether the first stable level has been established.
func (d *Debouncer) Baselined() bool {
	return d.baselined
}
