package input

import (
	"sync"
	"sync/atomic"
	"time"
)

// Latch is a pending edge flag. Set from the sampling side, Take from the
// consuming side; each Set is observed by at most one Take.
type Latch struct {
	v atomic.Bool
}

func (l *Latch) Set() {
	l.v.Store(true)
}

// Take reports whether the latch was set, clearing it.
func (l *Latch) Take() bool {
	return l.v.CompareAndSwap(true, false)
}

// Sample is one raw reading of the front panel inputs.
type Sample struct {
	Button    bool // true = pressed
	Interlock bool // true = engaged
	Time      time.Time
}

// PanelConfig holds the front panel timings.
type PanelConfig struct {
	Debounce         time.Duration
	LongPress        time.Duration
	DoubleClick      time.Duration
	InterlockOnDelay time.Duration
	InterlockGrace   time.Duration
}

// Panel combines the button decoder and interlock tracker and latches the
// decoded gestures for the engine. Process runs on the sampling goroutine;
// everything else may be called from any goroutine.
type Panel struct {
	mu        sync.Mutex
	button    *Button
	interlock *Interlock

	trigger    Latch
	abort      Latch
	shortPress Latch
}

// NewPanel creates a panel.
func NewPanel(cfg PanelConfig) *Panel {
	return &Panel{
		button:    NewButton(cfg.Debounce, cfg.LongPress, cfg.DoubleClick),
		interlock: NewInterlock(cfg.InterlockOnDelay, cfg.InterlockGrace),
	}
}

// Process feeds a sample and returns the gesture it completed.
// Click latches a short press, double click a trigger, long press an abort.
func (p *Panel) Process(s Sample) Gesture {
	p.mu.Lock()
	p.interlock.Process(s.Interlock, s.Time)
	g := p.button.Process(s.Button, s.Time)
	p.mu.Unlock()

	switch g {
	case GestureClick:
		p.shortPress.Set()
	case GestureDoubleClick:
		p.trigger.Set()
	case GestureLongPress:
		p.abort.Set()
	}
	return g
}

func (p *Panel) TakeTrigger() bool    { return p.trigger.Take() }
func (p *Panel) TakeAbort() bool      { return p.abort.Take() }
func (p *Panel) TakeShortPress() bool { return p.shortPress.Take() }

// InterlockEngaged returns the raw interlock signal.
func (p *Panel) InterlockEngaged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interlock.Raw()
}

// InterlockValid reports interlock validity at now.
func (p *Panel) InterlockValid(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interlock.Valid(now)
}
