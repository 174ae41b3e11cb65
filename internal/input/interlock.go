package input

import "time"

// Interlock tracks the safety interlock signal.
//
// The signal only counts as engaged after it has held for the on-delay. Once
// engaged, a lost signal stays valid for the grace period so a brief glitch
// does not abort a session; a signal that returns within grace is engaged
// again immediately.
type Interlock struct {
	onDelay time.Duration
	grace   time.Duration

	seen     bool
	raw      bool
	rawSince time.Time

	engaged bool
	lostAt  time.Time
}

// NewInterlock creates a tracker with the given stabilisation and grace
// periods.
func NewInterlock(onDelay, grace time.Duration) *Interlock {
	return &Interlock{onDelay: onDelay, grace: grace}
}

// Process feeds a raw sample.
func (l *Interlock) Process(raw bool, now time.Time) {
	if !l.seen || raw != l.raw {
		l.seen = true
		l.raw = raw
		l.rawSince = now
		if !raw && l.engaged {
			l.lostAt = now
		}
	}

	if raw && !l.engaged && now.Sub(l.rawSince) >= l.onDelay {
		l.engaged = true
	}
	if !raw && l.engaged && now.Sub(l.lostAt) >= l.grace {
		l.engaged = false
	}
}

// Raw returns the last raw signal.
func (l *Interlock) Raw() bool {
	return l.raw
}

// Valid reports whether the interlock permits hardware activation at now.
func (l *Interlock) Valid(now time.Time) bool {
	if !l.engaged {
		return false
	}
	if l.raw {
		return true
	}
	return now.Sub(l.lostAt) < l.grace
}
