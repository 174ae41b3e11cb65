package session

import (
	"errors"
	"fmt"
	"sync"
)

// Errors returned by engine commands. The engine state is unchanged when any
// of them is returned.
var (
	ErrInterlock                = errors.New("safety interlock not valid")
	ErrProvisioning             = errors.New("network provisioning required")
	ErrBusy                     = errors.New("device not ready")
	ErrInvalidConfig            = errors.New("invalid session config")
	ErrRejected                 = errors.New("duration rejected by rules")
	ErrWrongState               = errors.New("command not valid in current state")
	ErrTimeModificationDisabled = errors.New("time modification disabled")
)

// Engine is the session state machine. It is safe for concurrent use by one
// tick driver and any number of command callers.
type Engine struct {
	hal   HAL
	rules Rules

	// ioMu orders HAL side effects. It is taken before mu is released so
	// effects are applied in the order the mutations happened.
	ioMu sync.Mutex

	mu         sync.Mutex
	defaults   SystemDefaults
	presets    SessionPresets
	deterrents DeterrentConfig

	state   DeviceState
	timers  SessionTimers
	stats   SessionStats
	active  SessionConfig
	rewards RewardHistory

	now          uint64 // HAL clock at the start of the current call
	lastSecondMs uint64 // clock position of the last counted second
	dirty        bool

	keepAliveArmed  bool
	lastKeepAliveMs uint64
	strikes         uint32

	fault *Fault

	pending []func(HAL)
}

// NewEngine creates an engine in READY with a fresh reward code.
func NewEngine(hal HAL, rules Rules, defaults SystemDefaults, presets SessionPresets, deterrents DeterrentConfig) *Engine {
	e := &Engine{
		hal:        hal,
		rules:      rules,
		defaults:   defaults,
		presets:    presets,
		deterrents: deterrents,
	}
	e.lock()
	defer e.unlock()
	e.lastSecondMs = e.now
	e.rotateReward()
	return e
}

// lock reads the clock and takes the state lock.
func (e *Engine) lock() {
	now := e.hal.Millis()
	e.mu.Lock()
	e.now = now
}

// unlock releases the state lock and applies queued HAL effects.
func (e *Engine) unlock() {
	effects := e.pending
	e.pending = nil
	e.ioMu.Lock()
	e.mu.Unlock()
	defer e.ioMu.Unlock()
	for _, fx := range effects {
		fx(e.hal)
	}
}

func (e *Engine) effect(fx func(HAL)) {
	e.pending = append(e.pending, fx)
}

func (e *Engine) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.effect(func(h HAL) { h.Log(msg) })
}

type tickInput struct {
	valid        bool
	provisioning bool
	trigger      bool
	abort        bool
	shortPress   bool
}

// Tick advances the state machine. It must be called at a steady cadence of
// at least 1 Hz; countdowns advance once per elapsed second of HAL clock no
// matter how often Tick runs.
func (e *Engine) Tick() {
	in := tickInput{
		valid:        e.hal.IsSafetyInterlockValid(),
		provisioning: e.hal.IsNetworkProvisioningRequested(),
		trigger:      e.hal.CheckTriggerAction(),
		abort:        e.hal.CheckAbortAction(),
		shortPress:   e.hal.CheckShortPressAction(),
	}

	e.lock()
	defer e.unlock()

	// 1. Safety and connectivity
	if !in.valid && e.isCritical() {
		e.raiseFault("Safety Disconnect")
	}
	if in.provisioning {
		if e.isCritical() {
			e.logf("Critical: network failure, aborting session")
			e.abort("Network Failure")
		} else {
			e.logf("Network provisioning authorized, handing over control")
			e.save()
			e.effect(func(h HAL) { h.EnterNetworkProvisioning() })
			return
		}
	}

	// 2. Input edges
	if in.abort {
		e.logf("Universal abort triggered (hardware input)")
		e.abort("Manual Long-Press")
	}
	if in.trigger {
		e.trigger("Button Double-Click")
	}
	if in.shortPress {
		e.shortPress(in.valid)
	}

	// 3. Countdowns; paused while the interlock is invalid
	for n := e.elapsedSeconds(); n > 0; n-- {
		if !in.valid {
			break
		}
		e.second()
	}

	// 4. Keep-alive watchdog
	e.checkKeepAlive()

	// 5. Continuous hardware enforcement
	e.queueMask()

	// 6. Persistence
	if e.dirty {
		e.save()
	}
}

// elapsedSeconds consumes whole seconds of clock since the last call.
func (e *Engine) elapsedSeconds() int {
	if e.now < e.lastSecondMs {
		e.lastSecondMs = e.now
		return 0
	}
	n := (e.now - e.lastSecondMs) / 1000
	e.lastSecondMs += n * 1000
	return int(n)
}

func (e *Engine) second() {
	switch e.state {
	case StateArmed:
		if e.timers.Triggered {
			e.channelCountdown()
		} else {
			e.triggerWait()
		}

	case StateLocked:
		if e.timers.LockRemaining > 0 {
			e.rules.OnTickLocked(&e.stats)
			e.timers.LockRemaining--
			e.dirty = true
			if e.timers.LockRemaining == 0 {
				e.completeSession()
			}
		}

	case StateAborted:
		if e.timers.PenaltyRemaining == 0 {
			e.logf("No penalty pending, leaving ABORTED")
			e.resetToReady(true)
			return
		}
		e.timers.PenaltyRemaining--
		e.dirty = true
		if e.timers.PenaltyRemaining == 0 {
			e.logf("Penalty time served")
			e.resetToReady(true)
		}

	case StateTesting:
		if e.timers.TestRemaining > 0 {
			e.timers.TestRemaining--
			e.dirty = true
			if e.timers.TestRemaining == 0 {
				e.logf("Test session done")
				e.stopTest()
			}
		}
	}
}

// channelCountdown decrements channel delays and locks once all are zero.
func (e *Engine) channelCountdown() {
	allZero := true
	for i := range e.timers.ChannelDelays {
		if e.timers.ChannelDelays[i] > 0 {
			allZero = false
			e.timers.ChannelDelays[i]--
		}
	}
	e.dirty = true
	if allZero {
		e.enterLocked("Auto Sequence")
	}
}

// triggerWait counts down the trigger timeout and cancels the session,
// without consequences, when it runs out.
func (e *Engine) triggerWait() {
	if e.timers.TriggerTimeout > 0 {
		e.timers.TriggerTimeout--
		e.dirty = true
	}
	if e.timers.TriggerTimeout == 0 {
		e.logf("Armed timeout: trigger not received in time, cancelling")
		e.resetToReady(false)
	}
}

func (e *Engine) shortPress(valid bool) {
	switch e.state {
	case StateReady:
		if !valid {
			e.logf("Test ignored: safety interlock not valid")
			return
		}
		e.startTest()
	case StateTesting:
		e.stopTest()
	case StateCompleted:
		e.resetToReady(true)
	}
}

func (e *Engine) isCritical() bool {
	switch e.state {
	case StateLocked, StateTesting:
		return true
	case StateArmed:
		return e.timers.Triggered
	}
	return false
}

func (e *Engine) requiresFailsafe() bool {
	return e.state == StateLocked || e.state == StateTesting
}

func (e *Engine) requiresKeepAlive() bool {
	return e.state == StateLocked || e.state == StateTesting
}

// changeState is the only way the state changes after boot. It applies the
// safety profile for the new state and persists.
func (e *Engine) changeState(next DeviceState) {
	if e.state == next {
		return
	}
	e.state = next
	e.logf(">>> STATE CHANGE: %s", next)
	e.applySafetyProfile()
	e.queueMask()
	e.save()
}

func (e *Engine) applySafetyProfile() {
	timeout := uint32(DefaultWatchdogTimeout)
	if e.isCritical() {
		timeout = CriticalWatchdogTimeout
	}
	e.effect(func(h HAL) { h.SetWatchdogTimeout(timeout) })

	if e.requiresFailsafe() {
		e.armFailsafe()
	} else {
		e.effect(func(h HAL) { h.DisarmFailsafeTimer() })
	}

	if e.requiresKeepAlive() {
		e.armKeepAlive()
	} else {
		e.disarmKeepAlive()
	}
}

func (e *Engine) armFailsafe() {
	target := e.timers.LockRemaining
	if e.state == StateTesting {
		target = e.timers.TestRemaining
	}
	secs := FailsafeDuration(target, e.defaults.FailsafeMaxLockSeconds)
	e.effect(func(h HAL) { h.ArmFailsafeTimer(secs) })
}

var failsafeTiers = []uint32{
	4 * secsHour,
	8 * secsHour,
	12 * secsHour,
	24 * secsHour,
	48 * secsHour,
	168 * secsHour,
}

// FailsafeDuration picks the hardware failsafe timeout for a target duration:
// the smallest tier at or above it, capped at maxLock when maxLock is set and
// still covers the target.
func FailsafeDuration(target, maxLock uint32) uint32 {
	secs := failsafeTiers[len(failsafeTiers)-1]
	for _, tier := range failsafeTiers {
		if tier >= target {
			secs = tier
			break
		}
	}
	if maxLock > 0 && maxLock >= target && secs > maxLock {
		secs = maxLock
	}
	return secs
}

// safetyMask is the set of channels that should be energised right now.
func (e *Engine) safetyMask() uint8 {
	switch e.state {
	case StateLocked, StateTesting:
		return 1<<MaxChannels - 1
	case StateArmed:
		if !e.timers.Triggered {
			return 0
		}
		var mask uint8
		for i, d := range e.timers.ChannelDelays {
			if d == 0 {
				mask |= 1 << i
			}
		}
		return mask
	}
	return 0
}

func (e *Engine) queueMask() {
	mask := e.safetyMask()
	e.effect(func(h HAL) {
		if err := h.SetSafetyMask(mask); err != nil {
			h.Log(fmt.Sprintf("Hardware: set safety mask %04b: %v", mask, err))
		}
	})
}

func (e *Engine) save() {
	snap := e.snapshot()
	e.dirty = false
	e.effect(func(h HAL) {
		if err := h.SaveState(snap); err != nil {
			h.Log(fmt.Sprintf("Storage: save state: %v", err))
		}
	})
}

func (e *Engine) raiseFault(reason string) {
	e.fault = &Fault{Reason: reason, State: e.state, AtMs: e.now}
	e.logf("Safety fault in %s: %s", e.state, reason)
	e.abort(reason)
}

func (e *Engine) armKeepAlive() {
	e.lastKeepAliveMs = e.now
	e.strikes = 0
	if !e.keepAliveArmed {
		e.keepAliveArmed = true
		e.logf("Keep-alive watchdog ARMED")
	}
}

func (e *Engine) disarmKeepAlive() {
	e.lastKeepAliveMs = 0
	e.strikes = 0
	if e.keepAliveArmed {
		e.keepAliveArmed = false
		e.logf("Keep-alive watchdog DISARMED")
	}
}

func (e *Engine) checkKeepAlive() {
	if !e.keepAliveArmed || e.defaults.KeepAliveIntervalMs == 0 || e.defaults.KeepAliveMaxStrikes == 0 {
		return
	}
	if e.now < e.lastKeepAliveMs {
		return
	}
	strikes := uint32((e.now - e.lastKeepAliveMs) / uint64(e.defaults.KeepAliveIntervalMs))
	if strikes <= e.strikes {
		return
	}
	e.strikes = strikes
	if strikes >= e.defaults.KeepAliveMaxStrikes {
		e.logf("Keep-alive watchdog: strike %d/%d, aborting", strikes, e.defaults.KeepAliveMaxStrikes)
		e.raiseFault("UI Watchdog Strikeout")
		return
	}
	e.logf("Keep-alive watchdog: missed check, strike %d/%d", strikes, e.defaults.KeepAliveMaxStrikes)
}

// PetWatchdog resets the keep-alive watchdog.
func (e *Engine) PetWatchdog() {
	e.lock()
	defer e.unlock()
	if !e.keepAliveArmed {
		return
	}
	if e.strikes > 0 {
		e.logf("Keep-alive signal, resetting %d strikes", e.strikes)
	}
	e.lastKeepAliveMs = e.now
	e.strikes = 0
}

// StartSession validates cfg and arms a session. It returns the final lock
// duration in seconds.
func (e *Engine) StartSession(cfg SessionConfig) (uint32, error) {
	valid := e.hal.IsSafetyInterlockValid()
	provisioning := e.hal.IsNetworkProvisioningRequested()
	var enabled [MaxChannels]bool
	for i := range enabled {
		enabled[i] = e.hal.IsChannelEnabled(i)
	}

	e.lock()
	defer e.unlock()

	if !valid {
		e.logf("Start failed: safety interlock not valid")
		return 0, ErrInterlock
	}
	if provisioning {
		e.logf("Start failed: network unstable, provisioning required")
		return 0, ErrProvisioning
	}
	if e.state != StateReady {
		e.logf("Start failed: device not READY (%s)", e.state)
		return 0, ErrBusy
	}
	if err := ValidateSessionConfig(cfg, func(i int) bool { return enabled[i] }); err != nil {
		e.logf("Start failed: %v", err)
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	base := e.resolveBaseDuration(cfg)
	final := e.rules.ProcessStartRequest(base, e.presets, e.deterrents, e.stats)
	if final == 0 {
		e.logf("Start failed: duration %s rejected by rules", FormatSeconds(base))
		return 0, ErrRejected
	}

	e.active = cfg
	e.timers = SessionTimers{LockDuration: final}
	if e.deterrents.EnableRewardCode && e.deterrents.RewardPenaltyStrategy == DeterrentFixed {
		e.timers.PenaltyDuration = e.deterrents.RewardPenalty
	}
	if e.deterrents.EnablePaybackTime {
		e.timers.DebtCaptured = e.stats.PaybackAccumulated
		if final > base {
			e.timers.PotentialDebtServed = min(final-base, e.timers.DebtCaptured)
		}
	}
	for i := range e.timers.ChannelDelays {
		if enabled[i] {
			e.timers.ChannelDelays[i] = cfg.ChannelDelays[i]
		}
	}

	e.logf("Total lock time: %s (base %s + rules)", FormatSeconds(final), FormatSeconds(base))
	if cfg.TriggerStrategy == StrategyButtonTrigger {
		e.timers.TriggerTimeout = e.defaults.ArmedTimeoutSeconds
		e.logf("Waiting for trigger (timeout %s)", FormatSeconds(e.timers.TriggerTimeout))
	} else {
		e.timers.Triggered = true
		e.logf("Auto sequence started, delays %v", e.timers.ChannelDelays)
	}

	e.lastSecondMs = e.now
	e.changeState(StateArmed)
	return final, nil
}

// resolveBaseDuration turns the requested duration policy into seconds.
func (e *Engine) resolveBaseDuration(cfg SessionConfig) uint32 {
	if cfg.DurationType == DurationFixed {
		return cfg.FixedDuration
	}

	lo, hi := cfg.MinDuration, cfg.MaxDuration
	switch cfg.DurationType {
	case DurationShort:
		lo, hi = e.presets.ShortMin, e.presets.ShortMax
	case DurationMedium:
		lo, hi = e.presets.MediumMin, e.presets.MediumMax
	case DurationLong:
		lo, hi = e.presets.LongMin, e.presets.LongMax
	}

	if hi > e.presets.MaxSessionDuration {
		hi = e.presets.MaxSessionDuration
	}
	if lo > hi {
		lo = hi
	}
	if lo < e.presets.MinSessionDuration {
		lo = e.presets.MinSessionDuration
	}
	if hi < lo {
		hi = lo
	}

	base := e.hal.Random(lo, hi)
	e.logf("Resolved %s duration: %s (limits %d-%d s)", cfg.DurationType, FormatSeconds(base), lo, hi)
	return base
}

func (e *Engine) enterLocked(source string) {
	e.logf("Lock source: %s", source)
	e.timers.LockRemaining = e.timers.LockDuration
	e.timers.TriggerTimeout = 0
	e.timers.ChannelDelays = [MaxChannels]uint32{}
	e.changeState(StateLocked)
}

// Trigger is the command-surface equivalent of the hardware trigger edge.
func (e *Engine) Trigger(source string) {
	e.lock()
	defer e.unlock()
	e.trigger(source)
}

func (e *Engine) trigger(source string) {
	switch {
	case e.state == StateArmed && e.active.TriggerStrategy == StrategyButtonTrigger && !e.timers.Triggered:
		e.logf("Trigger source: %s", source)
		e.timers.Triggered = true
		e.timers.TriggerTimeout = 0
		e.lastSecondMs = e.now
		if e.timers.ChannelDelays == [MaxChannels]uint32{} {
			e.enterLocked(source)
			return
		}
		e.logf("Channel countdown started, delays %v", e.timers.ChannelDelays)
		e.applySafetyProfile()
		e.queueMask()
		e.save()
	case e.state == StateTesting:
		e.logf("Trigger ignored: hardware test in progress")
	}
}

// Abort ends the current session. From ARMED or LOCKED the abort
// consequences apply; from TESTING the test is stopped.
func (e *Engine) Abort(source string) {
	e.lock()
	defer e.unlock()
	e.abort(source)
}

func (e *Engine) abort(source string) {
	e.logf("Abort source: %s", source)

	switch e.state {
	case StateArmed, StateLocked:
		cons := e.rules.OnAbort(&e.stats, e.deterrents, e.presets, e.hal)
		if e.deterrents.EnablePaybackTime {
			e.logf("Payback added, total debt: %s", FormatSeconds(e.stats.PaybackAccumulated))
		}

		e.timers.LockRemaining = 0
		e.timers.TriggerTimeout = 0
		e.timers.Triggered = false
		e.timers.ChannelDelays = [MaxChannels]uint32{}
		e.timers.PotentialDebtServed = 0

		if cons.EnterPenaltyBox && cons.PenaltyDuration > 0 {
			e.timers.PenaltyDuration = cons.PenaltyDuration
			e.timers.PenaltyRemaining = cons.PenaltyDuration
			e.lastSecondMs = e.now
			e.logf("Penalty enforced: %s", FormatSeconds(cons.PenaltyDuration))
			e.changeState(StateAborted)
			return
		}

		e.logf("No penalty box enforced")
		e.timers.PenaltyRemaining = 0
		e.changeState(StateAborted)
		e.resetToReady(true)

	case StateTesting:
		e.stopTest()

	default:
		e.logf("Abort ignored in %s", e.state)
	}
}

func (e *Engine) completeSession() {
	e.rules.OnCompletion(&e.stats, e.timers, e.deterrents)
	e.logf("Session complete: streak %d, completed %d, debt %s",
		e.stats.Streaks, e.stats.Completed, FormatSeconds(e.stats.PaybackAccumulated))

	e.timers.LockRemaining = 0
	e.timers.PenaltyRemaining = 0
	e.timers.TestRemaining = 0
	e.timers.TriggerTimeout = 0
	e.timers.PotentialDebtServed = 0
	e.timers.DebtCaptured = 0
	e.timers.ChannelDelays = [MaxChannels]uint32{}
	e.active.ChannelDelays = [MaxChannels]uint32{}

	// The saved COMPLETED snapshot carries the updated stats.
	e.changeState(StateCompleted)
}

// Acknowledge moves a completed session back to READY.
func (e *Engine) Acknowledge() error {
	e.lock()
	defer e.unlock()
	if e.state != StateCompleted {
		return ErrWrongState
	}
	e.resetToReady(true)
	return nil
}

func (e *Engine) resetToReady(rotate bool) {
	e.timers = SessionTimers{}
	e.active = SessionConfig{}
	if rotate {
		e.rotateReward()
	} else {
		e.logf("Preserving existing reward code")
	}
	e.changeState(StateReady)
}

func (e *Engine) rotateReward() {
	if !e.rewards.Rotate(e.hal) {
		e.logf("Warning: reward generation timed out, potential checksum collision accepted")
	}
	e.logf("New reward code generated: %s...", e.rewards[0].Code[:8])
}

// StartTest runs a short hardware self-test with no consequences.
func (e *Engine) StartTest() error {
	valid := e.hal.IsSafetyInterlockValid()
	e.lock()
	defer e.unlock()
	if !valid {
		e.logf("Test failed: safety interlock not valid")
		return ErrInterlock
	}
	if e.state != StateReady {
		return ErrBusy
	}
	e.startTest()
	return nil
}

func (e *Engine) startTest() {
	e.timers.TestRemaining = e.defaults.TestModeSeconds
	e.lastSecondMs = e.now
	e.changeState(StateTesting)
}

// StopTest ends a running hardware test.
func (e *Engine) StopTest() {
	e.lock()
	defer e.unlock()
	if e.state != StateTesting {
		return
	}
	e.stopTest()
}

func (e *Engine) stopTest() {
	e.logf("Stopping test session")
	e.timers.TestRemaining = 0
	e.changeState(StateReady)
}

// ModifyTime lengthens or shortens the running countdown by the configured
// step and returns the new remaining seconds.
func (e *Engine) ModifyTime(increase bool) (uint32, error) {
	e.lock()
	defer e.unlock()

	if !e.deterrents.EnableTimeModification {
		return 0, ErrTimeModificationDisabled
	}

	var cur *uint32
	switch e.state {
	case StateArmed:
		cur = &e.timers.LockDuration
	case StateLocked:
		cur = &e.timers.LockRemaining
	case StateTesting:
		cur = &e.timers.TestRemaining
	default:
		return 0, ErrWrongState
	}

	step := e.deterrents.TimeModificationStep
	old := *cur
	next := old
	if increase {
		n := uint64(old) + uint64(step)
		if n > uint64(e.presets.MaxSessionDuration) {
			n = uint64(e.presets.MaxSessionDuration)
		}
		if n > uint64(old) {
			next = uint32(n)
		}
	} else if old > step {
		next = max(old-step, step)
	}

	if next == old {
		return old, nil
	}
	*cur = next
	e.dirty = true
	if e.state == StateLocked {
		// LockDuration moves with LockRemaining.
		if next > old {
			e.timers.LockDuration += next - old
		} else {
			e.timers.LockDuration -= min(old-next, e.timers.LockDuration)
		}
	}

	if e.state != StateTesting && e.timers.DebtCaptured > 0 {
		served := int64(e.timers.PotentialDebtServed) + int64(next) - int64(old)
		served = max(served, 0)
		served = min(served, int64(e.timers.DebtCaptured))
		e.timers.PotentialDebtServed = uint32(served)
	}

	verb := "decreased"
	if increase {
		verb = "increased"
	}
	e.logf("Time %s by %s, now %s", verb, FormatSeconds(step), FormatSeconds(next))

	if e.requiresFailsafe() {
		e.armFailsafe()
	}
	return next, nil
}

// UpdateSettings replaces presets and deterrents between sessions.
func (e *Engine) UpdateSettings(presets SessionPresets, deterrents DeterrentConfig) error {
	e.lock()
	defer e.unlock()
	if e.state != StateReady && e.state != StateCompleted {
		return ErrBusy
	}
	e.presets = presets
	e.deterrents = deterrents
	e.logf("Settings updated")
	return nil
}

// Load restores persisted state. It is meant to be called once at boot,
// followed by Recover.
func (e *Engine) Load(snap Snapshot) {
	e.lock()
	defer e.unlock()
	e.state = snap.State
	e.timers = snap.Timers
	e.stats = snap.Stats
	e.active = snap.Config
	if snap.Rewards[0].Code != "" {
		e.rewards = snap.Rewards
	}
	e.lastSecondMs = e.now
}

// Recover resolves a restored state: an active session interrupted by a
// reboot is aborted, a test or a finished session returns to READY, and a
// penalty box resumes.
func (e *Engine) Recover() {
	e.lock()
	defer e.unlock()

	switch e.state {
	case StateLocked, StateArmed:
		e.logf("Reboot detected during active session, aborting")
		e.abort("Reboot")
	case StateTesting:
		e.logf("Loaded TESTING state, resetting to READY")
		e.resetToReady(true)
	case StateCompleted:
		e.logf("Loaded COMPLETED state, resetting to READY")
		e.resetToReady(true)
	case StateAborted:
		if e.timers.PenaltyRemaining == 0 {
			e.logf("Loaded ABORTED state with no penalty, resetting to READY")
			e.resetToReady(true)
			return
		}
		e.logf("Resuming penalty, %s remaining", FormatSeconds(e.timers.PenaltyRemaining))
		e.applySafetyProfile()
		e.queueMask()
		e.save()
	default:
		e.logf("Resuming %s state", e.state)
		e.applySafetyProfile()
		e.queueMask()
		e.save()
	}
}

// Diagnostics logs a summary of the engine and its settings through the HAL.
// Called once at boot.
func (e *Engine) Diagnostics() {
	valid := e.hal.IsSafetyInterlockValid()
	engaged := e.hal.IsSafetyInterlockEngaged()

	e.lock()
	defer e.unlock()

	e.logf("=== Diagnostics ===")
	e.logf("State: %s", e.state)
	e.logf("Interlock: engaged=%t valid=%t", engaged, valid)
	e.logf("Keep-alive strikes: %d/%d", e.strikes, e.defaults.KeepAliveMaxStrikes)
	if err := CheckSettings(e.presets, e.deterrents); err != nil {
		e.logf("Settings check: FAILED (%v)", err)
	} else {
		e.logf("Settings check: OK")
	}
	p := e.presets
	e.logf("Presets: short %s-%s, medium %s-%s, long %s-%s, session %s-%s",
		FormatSeconds(p.ShortMin), FormatSeconds(p.ShortMax),
		FormatSeconds(p.MediumMin), FormatSeconds(p.MediumMax),
		FormatSeconds(p.LongMin), FormatSeconds(p.LongMax),
		FormatSeconds(p.MinSessionDuration), FormatSeconds(p.MaxSessionDuration))
	d := e.deterrents
	e.logf("Deterrents: streaks=%t reward=%t (%s) payback=%t (%s) time-mod=%t (step %s)",
		d.EnableStreaks,
		d.EnableRewardCode, d.RewardPenaltyStrategy,
		d.EnablePaybackTime, d.PaybackTimeStrategy,
		d.EnableTimeModification, FormatSeconds(d.TimeModificationStep))
	s := e.stats
	e.logf("Stats: streak %d, completed %d, aborted %d, debt %s, locked %s",
		s.Streaks, s.Completed, s.Aborted,
		FormatSeconds(s.PaybackAccumulated), FormatSeconds(s.TotalLockedTime))
	if e.fault != nil {
		e.logf("Last fault: %s in %s", e.fault.Reason, e.fault.State)
	}
}

func (e *Engine) State() DeviceState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Timers() SessionTimers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timers
}

func (e *Engine) Stats() SessionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) ActiveConfig() SessionConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) Presets() SessionPresets {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presets
}

func (e *Engine) Deterrents() DeterrentConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deterrents
}

func (e *Engine) SystemDefaults() SystemDefaults {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.defaults
}

// Rewards returns the reward history, current code first. It reports false
// and returns nothing outside READY and COMPLETED.
func (e *Engine) Rewards() ([]Reward, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !rewardsVisible(e.state) {
		return nil, false
	}
	out := make([]Reward, len(e.rewards))
	copy(out, e.rewards[:])
	return out, true
}

func rewardsVisible(s DeviceState) bool {
	return s == StateReady || s == StateCompleted
}

// Snapshot returns a copy of the engine state for readers. Reward codes are
// blanked whenever they are not visible.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.snapshot()
	if !rewardsVisible(e.state) {
		snap.Rewards = [RewardHistorySize]Reward{}
	}
	return snap
}

func (e *Engine) snapshot() Snapshot {
	return Snapshot{
		State:   e.state,
		Timers:  e.timers,
		Stats:   e.stats,
		Config:  e.active,
		Rewards: e.rewards,
	}
}

// LastFault returns the most recent safety fault, if any.
func (e *Engine) LastFault() (Fault, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fault == nil {
		return Fault{}, false
	}
	return *e.fault, true
}

// KeepAliveStrikes returns the current keep-alive strike count.
func (e *Engine) KeepAliveStrikes() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strikes
}

// HardwarePermitted reports whether the interlock is valid right now.
func (e *Engine) HardwarePermitted() bool {
	return e.hal.IsSafetyInterlockValid()
}
