//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const chipName = "gpiochip0"

// RealReader reads the front panel from actual hardware using Linux GPIO
// character device.
type RealReader struct {
	chip      *gpiocdev.Chip
	button    *gpiocdev.Line
	interlock *gpiocdev.Line
}

// NewRealReader creates a front panel reader for actual Raspberry Pi hardware.
func NewRealReader(pinButton, pinInterlock int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Inputs switch to ground, so pull up.
	button, err := chip.RequestLine(pinButton, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request button pin %d: %w", pinButton, err)
	}

	interlock, err := chip.RequestLine(pinInterlock, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		button.Close()
		chip.Close()
		return nil, fmt.Errorf("request interlock pin %d: %w", pinInterlock, err)
	}

	return &RealReader{
		chip:      chip,
		button:    button,
		interlock: interlock,
	}, nil
}

// Read returns the logical states of the button and the interlock.
func (r *RealReader) Read() (bool, bool, error) {
	buttonRaw, err := r.button.Value()
	if err != nil {
		return false, false, fmt.Errorf("read button pin: %w", err)
	}

	interlockRaw, err := r.interlock.Value()
	if err != nil {
		return false, false, fmt.Errorf("read interlock pin: %w", err)
	}

	return buttonRaw == 0, interlockRaw == 0, nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (r *RealReader) Close() error {
	var errs []error
	errs = append(errs, releaseLine("button", r.button)...)
	errs = append(errs, releaseLine("interlock", r.interlock)...)
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealDriver drives the lock channel outputs on actual hardware.
type RealDriver struct {
	chip  *gpiocdev.Chip
	lines [Channels]*gpiocdev.Line
}

// NewRealDriver requests the channel pins as outputs, all de-energised.
// Channels with a negative pin are not installed.
func NewRealDriver(pins [Channels]int) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	d := &RealDriver{chip: chip}
	for i, pin := range pins {
		if pin < 0 {
			continue
		}
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("request channel %d pin %d: %w", i+1, pin, err)
		}
		d.lines[i] = line
	}
	return d, nil
}

// Installed reports whether channel i has an output pin.
func (d *RealDriver) Installed(i int) bool {
	return i >= 0 && i < Channels && d.lines[i] != nil
}

// Set energises exactly the installed channels in mask.
func (d *RealDriver) Set(mask uint8) error {
	var errs []error
	for i, line := range d.lines {
		if line == nil {
			continue
		}
		v := 0
		if mask&(1<<i) != 0 {
			v = 1
		}
		if err := line.SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("set channel %d: %w", i+1, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("set errors: %v", errs)
	}
	return nil
}

// Close de-energises every channel, returns the pins to boot defaults and
// releases them.
func (d *RealDriver) Close() error {
	var errs []error
	for i, line := range d.lines {
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear channel %d: %w", i+1, err))
		}
		errs = append(errs, releaseLine(fmt.Sprintf("channel %d", i+1), line)...)
		d.lines[i] = nil
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		d.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func releaseLine(name string, line *gpiocdev.Line) []error {
	if line == nil {
		return nil
	}
	var errs []error
	if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
	}
	if err := line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
	}
	return errs
}
