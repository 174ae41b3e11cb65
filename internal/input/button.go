package input

import "time"

// Gesture is a decoded button action.
type Gesture uint8

const (
	GestureNone Gesture = iota
	GestureClick
	GestureDoubleClick
	GestureLongPress
)

func (g Gesture) String() string {
	switch g {
	case GestureClick:
		return "click"
	case GestureDoubleClick:
		return "double-click"
	case GestureLongPress:
		return "long-press"
	}
	return "none"
}

// Button decodes click, double click and long press from a debounced level.
// A long press fires while the button is still held; a click is only
// reported once the double-click window has passed without a second click.
type Button struct {
	deb         *Debouncer
	longPress   time.Duration
	doubleClick time.Duration

	down      bool
	downSince time.Time
	longFired bool

	clickPending bool
	lastRelease  time.Time
}

// NewButton creates a decoder. raw true means pressed.
func NewButton(debounce, longPress, doubleClick time.Duration) *Button {
	return &Button{
		deb:         NewDebouncer(debounce),
		longPress:   longPress,
		doubleClick: doubleClick,
	}
}

// Process feeds a raw sample and returns the gesture completed by it, if any.
func (b *Button) Process(raw bool, now time.Time) Gesture {
	if b.deb.Update(raw, now) {
		if b.deb.Stable() {
			b.down = true
			b.downSince = now
			b.longFired = false
			return GestureNone
		}

		b.down = false
		if b.longFired {
			return GestureNone
		}
		if b.clickPending && now.Sub(b.lastRelease) <= b.doubleClick {
			b.clickPending = false
			return GestureDoubleClick
		}
		b.clickPending = true
		b.lastRelease = now
		return GestureNone
	}

	if b.down && !b.longFired && now.Sub(b.downSince) >= b.longPress {
		b.longFired = true
		b.clickPending = false
		return GestureLongPress
	}

	if b.clickPending && !b.down && now.Sub(b.lastRelease) > b.doubleClick {
		b.clickPending = false
		return GestureClick
	}
	return GestureNone
}

// Pressed returns the debounced button level.
func (b *Button) Pressed() bool {
	return b.down
}
