// Package gpio provides front panel input reading and lock channel output
// driving with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the front panel inputs.
type Reader interface {
	// Read returns the logical states of the button and the interlock.
	// The raw GPIO values are inverted: inputs are wired to ground, so
	// raw inactive (0) = logical pressed/engaged.
	// Returns (buttonPressed, interlockEngaged, error).
	Read() (bool, bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Driver drives the lock channel outputs.
type Driver interface {
	// Installed reports whether channel i has an output pin.
	Installed(i int) bool

	// Set energises exactly the installed channels in mask (bit i =
	// channel i) and de-energises the rest.
	Set(mask uint8) error

	// Close de-energises all channels and releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinButton    = 17
	PinInterlock = 27
)

// Channels is the number of lock channel outputs.
const Channels = 4

// DefaultChannelPins are the output pins for channels 1-4. A pin of -1 marks
// a channel as not installed.
var DefaultChannelPins = [Channels]int{5, 6, 13, 19}
