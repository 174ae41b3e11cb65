package session

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// FakeHAL is a scripted HAL for tests. The clock only moves through Advance.
type FakeHAL struct {
	mu sync.Mutex

	// Now is the value returned by Millis.
	Now uint64

	// Engaged and Valid are the raw and grace-filtered interlock signals.
	Engaged bool
	Valid   bool

	// Enabled marks installed channels.
	Enabled [MaxChannels]bool

	// Provisioning controls IsNetworkProvisioningRequested.
	Provisioning bool

	// RandomFunc, if set, replaces the default seeded random source.
	RandomFunc func(min, max uint32) uint32
	rng        *rand.Rand

	// MaskError and SaveError, if set, are returned by the effect methods.
	MaskError error
	SaveError error

	// Recorded effects.
	Mask                uint8
	Masks               []uint8
	WatchdogTimeout     uint32
	FailsafeArmed       bool
	FailsafeSeconds     uint32
	Saved               []Snapshot
	Logs                []string
	ProvisioningEntered int

	trigger, abort, shortPress bool
}

// NewFakeHAL returns a fake with all channels installed and the interlock
// engaged.
func NewFakeHAL() *FakeHAL {
	return &FakeHAL{
		Engaged: true,
		Valid:   true,
		Enabled: [MaxChannels]bool{true, true, true, true},
		rng:     rand.New(rand.NewPCG(1, 2)),
	}
}

// Advance moves the clock forward by ms.
func (f *FakeHAL) Advance(ms uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Now += ms
}

// SetInterlock sets both the raw and the valid interlock signal.
func (f *FakeHAL) SetInterlock(engaged, valid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Engaged = engaged
	f.Valid = valid
}

// SimulateTrigger, SimulateAbort and SimulateShortPress latch an input edge
// until it is consumed.
func (f *FakeHAL) SimulateTrigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trigger = true
}

func (f *FakeHAL) SimulateAbort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abort = true
}

func (f *FakeHAL) SimulateShortPress() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shortPress = true
}

// LastSaved returns the most recent saved snapshot.
func (f *FakeHAL) LastSaved() (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Saved) == 0 {
		return Snapshot{}, false
	}
	return f.Saved[len(f.Saved)-1], true
}

// Logged reports whether any log line contains substr.
func (f *FakeHAL) Logged(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.Logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// HAL implementation.

func (f *FakeHAL) Random(min, max uint32) uint32 {
	if f.RandomFunc != nil {
		return f.RandomFunc(min, max)
	}
	if max <= min {
		return min
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rng == nil {
		f.rng = rand.New(rand.NewPCG(1, 2))
	}
	return min + uint32(f.rng.Uint64N(uint64(max-min)+1))
}

func (f *FakeHAL) IsChannelEnabled(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return i >= 0 && i < MaxChannels && f.Enabled[i]
}

func (f *FakeHAL) SetSafetyMask(mask uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MaskError != nil {
		return f.MaskError
	}
	for i := 0; i < MaxChannels; i++ {
		if !f.Enabled[i] {
			mask &^= 1 << i
		}
	}
	f.Mask = mask
	f.Masks = append(f.Masks, mask)
	return nil
}

func (f *FakeHAL) CheckTriggerAction() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.trigger
	f.trigger = false
	return v
}

func (f *FakeHAL) CheckAbortAction() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.abort
	f.abort = false
	return v
}

func (f *FakeHAL) CheckShortPressAction() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.shortPress
	f.shortPress = false
	return v
}

func (f *FakeHAL) IsSafetyInterlockEngaged() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Engaged
}

func (f *FakeHAL) IsSafetyInterlockValid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Valid
}

func (f *FakeHAL) IsNetworkProvisioningRequested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Provisioning
}

func (f *FakeHAL) EnterNetworkProvisioning() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProvisioningEntered++
}

func (f *FakeHAL) SetWatchdogTimeout(seconds uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WatchdogTimeout = seconds
}

func (f *FakeHAL) ArmFailsafeTimer(seconds uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailsafeArmed = true
	f.FailsafeSeconds = seconds
}

func (f *FakeHAL) DisarmFailsafeTimer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailsafeArmed = false
	f.FailsafeSeconds = 0
}

func (f *FakeHAL) SaveState(snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SaveError != nil {
		return f.SaveError
	}
	f.Saved = append(f.Saved, snap)
	return nil
}

func (f *FakeHAL) Log(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Logs = append(f.Logs, message)
}

func (f *FakeHAL) Millis() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Now
}
