package session

import (
	"errors"
	"testing"
)

func testPresets() SessionPresets {
	return SessionPresets{
		ShortMin: 600, ShortMax: 1800,
		MediumMin: 1800, MediumMax: 3600,
		LongMin: 3600, LongMax: 7200,
		MinSessionDuration: 10,
		MaxSessionDuration: 14400,
	}
}

// testDefaults has the keep-alive watchdog disabled; tests that need it
// set the interval themselves.
func testDefaults() SystemDefaults {
	return SystemDefaults{
		LongPressMs:            5000,
		ExtButtonSignalSeconds: 10,
		TestModeSeconds:        240,
		FailsafeMaxLockSeconds: 14400,
		ArmedTimeoutSeconds:    1800,
		BrokerMaxRetries:       5,
	}
}

func newTestEngine(t *testing.T, det DeterrentConfig) (*Engine, *FakeHAL) {
	t.Helper()
	hal := NewFakeHAL()
	e := NewEngine(hal, StandardRules{}, testDefaults(), testPresets(), det)
	return e, hal
}

func newTestEngineWithDefaults(t *testing.T, defaults SystemDefaults, det DeterrentConfig) (*Engine, *FakeHAL) {
	t.Helper()
	hal := NewFakeHAL()
	e := NewEngine(hal, StandardRules{}, defaults, testPresets(), det)
	return e, hal
}

// tickSeconds advances the fake clock one second per tick.
func tickSeconds(e *Engine, hal *FakeHAL, n int) {
	for i := 0; i < n; i++ {
		hal.Advance(1000)
		e.Tick()
	}
}

func fixedConfig(secs uint32) SessionConfig {
	return SessionConfig{
		DurationType:    DurationFixed,
		FixedDuration:   secs,
		TriggerStrategy: StrategyAutoCountdown,
	}
}

// startLocked starts a fixed session and ticks it into LOCKED.
func startLocked(t *testing.T, e *Engine, hal *FakeHAL, secs uint32) uint32 {
	t.Helper()
	final, err := e.StartSession(fixedConfig(secs))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	tickSeconds(e, hal, 1)
	if e.State() != StateLocked {
		t.Fatalf("expected LOCKED, got %s", e.State())
	}
	return final
}

func TestNewEngineReady(t *testing.T) {
	e, _ := newTestEngine(t, DeterrentConfig{})

	if e.State() != StateReady {
		t.Errorf("expected READY, got %s", e.State())
	}
	rewards, ok := e.Rewards()
	if !ok {
		t.Fatal("rewards should be visible in READY")
	}
	if len(rewards[0].Code) != RewardCodeLength {
		t.Errorf("expected %d symbol code, got %q", RewardCodeLength, rewards[0].Code)
	}
	if rewards[0].Checksum != Checksum(rewards[0].Code) {
		t.Errorf("checksum mismatch for %q", rewards[0].Code)
	}
}

func TestFullSessionLifecycle(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableStreaks: true})
	before, _ := e.Rewards()

	final, err := e.StartSession(fixedConfig(60))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if final != 60 {
		t.Errorf("expected 60s, got %d", final)
	}
	if e.State() != StateArmed {
		t.Fatalf("expected ARMED, got %s", e.State())
	}
	if _, ok := e.Rewards(); ok {
		t.Error("rewards must be hidden while ARMED")
	}

	// All delays zero: first counted second locks.
	tickSeconds(e, hal, 1)
	if e.State() != StateLocked {
		t.Fatalf("expected LOCKED, got %s", e.State())
	}
	if hal.Mask != 0x0F {
		t.Errorf("expected mask 0x0F, got %#x", hal.Mask)
	}
	if !hal.FailsafeArmed || hal.FailsafeSeconds != 14400 {
		t.Errorf("expected failsafe armed at 14400, got %v/%d", hal.FailsafeArmed, hal.FailsafeSeconds)
	}
	if hal.WatchdogTimeout != CriticalWatchdogTimeout {
		t.Errorf("expected critical watchdog, got %d", hal.WatchdogTimeout)
	}
	if snap := e.Snapshot(); snap.Rewards[0].Code != "" {
		t.Error("snapshot must not expose reward codes while LOCKED")
	}

	tickSeconds(e, hal, 59)
	if e.State() != StateLocked {
		t.Fatalf("expected LOCKED with 1s left, got %s", e.State())
	}
	if got := e.Timers().LockRemaining; got != 1 {
		t.Errorf("expected 1s remaining, got %d", got)
	}

	tickSeconds(e, hal, 1)
	if e.State() != StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", e.State())
	}
	stats := e.Stats()
	if stats.Completed != 1 || stats.Streaks != 1 {
		t.Errorf("expected completed=1 streaks=1, got %+v", stats)
	}
	if stats.TotalLockedTime != 60 {
		t.Errorf("expected 60s locked, got %d", stats.TotalLockedTime)
	}
	if hal.Mask != 0 {
		t.Errorf("expected outputs released, got %#x", hal.Mask)
	}
	if hal.FailsafeArmed {
		t.Error("failsafe should be disarmed after completion")
	}
	if hal.WatchdogTimeout != DefaultWatchdogTimeout {
		t.Errorf("expected default watchdog, got %d", hal.WatchdogTimeout)
	}

	completed, ok := e.Rewards()
	if !ok {
		t.Fatal("rewards should be visible in COMPLETED")
	}
	if completed[0] != before[0] {
		t.Error("reward should not rotate until acknowledged")
	}

	if err := e.Acknowledge(); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if e.State() != StateReady {
		t.Fatalf("expected READY, got %s", e.State())
	}
	after, _ := e.Rewards()
	if after[1] != before[0] {
		t.Error("expected previous code shifted into slot 1")
	}
	if after[0] == before[0] {
		t.Error("expected a new current code")
	}
}

func TestStartSessionErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(hal *FakeHAL)
		cfg   SessionConfig
		want  error
	}{
		{
			name:  "interlock invalid",
			setup: func(hal *FakeHAL) { hal.SetInterlock(false, false) },
			cfg:   fixedConfig(60),
			want:  ErrInterlock,
		},
		{
			name:  "provisioning requested",
			setup: func(hal *FakeHAL) { hal.Provisioning = true },
			cfg:   fixedConfig(60),
			want:  ErrProvisioning,
		},
		{
			name:  "below minimum",
			setup: func(hal *FakeHAL) {},
			cfg:   fixedConfig(5),
			want:  ErrRejected,
		},
		{
			name:  "zero fixed duration",
			setup: func(hal *FakeHAL) {},
			cfg:   fixedConfig(0),
			want:  ErrInvalidConfig,
		},
		{
			name:  "delay on missing channel",
			setup: func(hal *FakeHAL) { hal.Enabled[2] = false },
			cfg: SessionConfig{
				DurationType:  DurationFixed,
				FixedDuration: 60,
				ChannelDelays: [MaxChannels]uint32{0, 0, 30, 0},
			},
			want: ErrInvalidConfig,
		},
		{
			name:  "delay too long",
			setup: func(hal *FakeHAL) {},
			cfg: SessionConfig{
				DurationType:  DurationFixed,
				FixedDuration: 60,
				ChannelDelays: [MaxChannels]uint32{MaxChannelDelay + 1},
			},
			want: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, hal := newTestEngine(t, DeterrentConfig{})
			tt.setup(hal)

			final, err := e.StartSession(tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if final != 0 {
				t.Errorf("expected 0 duration on error, got %d", final)
			}
			if e.State() != StateReady {
				t.Errorf("expected READY after failed start, got %s", e.State())
			}
		})
	}
}

func TestStartSessionBusy(t *testing.T) {
	e, _ := newTestEngine(t, DeterrentConfig{})
	if _, err := e.StartSession(fixedConfig(60)); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := e.StartSession(fixedConfig(60)); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestStartSessionClampsToMax(t *testing.T) {
	e, _ := newTestEngine(t, DeterrentConfig{})
	final, err := e.StartSession(fixedConfig(20000))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if final != 14400 {
		t.Errorf("expected clamp to 14400, got %d", final)
	}
}

func TestStartSessionPresetRange(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	var gotMin, gotMax uint32
	hal.RandomFunc = func(min, max uint32) uint32 {
		gotMin, gotMax = min, max
		return min
	}

	final, err := e.StartSession(SessionConfig{DurationType: DurationMedium})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if gotMin != 1800 || gotMax != 3600 {
		t.Errorf("expected medium range 1800-3600, got %d-%d", gotMin, gotMax)
	}
	if final != 1800 {
		t.Errorf("expected 1800, got %d", final)
	}
}

func TestStartSessionRandomRangeClamped(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	var gotMin, gotMax uint32
	hal.RandomFunc = func(min, max uint32) uint32 {
		gotMin, gotMax = min, max
		return max
	}

	_, err := e.StartSession(SessionConfig{DurationType: DurationRandom, MinDuration: 1, MaxDuration: 99999})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if gotMin != 10 || gotMax != 14400 {
		t.Errorf("expected range clamped to 10-14400, got %d-%d", gotMin, gotMax)
	}
}

func TestAbortWithPenaltyBox(t *testing.T) {
	det := DeterrentConfig{
		EnableStreaks:     true,
		EnableRewardCode:  true,
		RewardPenalty:     300,
		EnablePaybackTime: true,
		PaybackTime:       60,
	}
	e, hal := newTestEngine(t, det)
	e.Load(Snapshot{Stats: SessionStats{Streaks: 3}})
	before, _ := e.Rewards()

	startLocked(t, e, hal, 600)
	e.Abort("test")

	if e.State() != StateAborted {
		t.Fatalf("expected ABORTED, got %s", e.State())
	}
	timers := e.Timers()
	if timers.PenaltyRemaining != 300 || timers.PenaltyDuration != 300 {
		t.Errorf("expected 300s penalty, got %+v", timers)
	}
	stats := e.Stats()
	if stats.Streaks != 0 || stats.Aborted != 1 {
		t.Errorf("expected streak reset and aborted=1, got %+v", stats)
	}
	if stats.PaybackAccumulated != 60 {
		t.Errorf("expected 60s payback, got %d", stats.PaybackAccumulated)
	}
	if hal.Mask != 0 || hal.FailsafeArmed {
		t.Error("outputs must be released in ABORTED")
	}
	if _, ok := e.Rewards(); ok {
		t.Error("rewards must be hidden during the penalty")
	}

	tickSeconds(e, hal, 299)
	if e.State() != StateAborted {
		t.Fatalf("expected ABORTED with 1s left, got %s", e.State())
	}
	tickSeconds(e, hal, 1)
	if e.State() != StateReady {
		t.Fatalf("expected READY after penalty, got %s", e.State())
	}
	after, _ := e.Rewards()
	if after[1] != before[0] {
		t.Error("expected reward rotation after penalty")
	}
}

func TestAbortWithoutPenaltyGoesReady(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnablePaybackTime: true, PaybackTime: 90})
	startLocked(t, e, hal, 600)

	e.Abort("test")

	if e.State() != StateReady {
		t.Fatalf("expected READY, got %s", e.State())
	}
	// 90s rounds up to 120s.
	if got := e.Stats().PaybackAccumulated; got != 120 {
		t.Errorf("expected 120s payback, got %d", got)
	}
	sawAborted := false
	for _, s := range hal.Saved {
		if s.State == StateAborted {
			sawAborted = true
		}
	}
	if !sawAborted {
		t.Error("expected ABORTED to be persisted on the way to READY")
	}
}

func TestAbortFromArmedAppliesConsequences(t *testing.T) {
	e, _ := newTestEngine(t, DeterrentConfig{EnableStreaks: true, EnablePaybackTime: true, PaybackTime: 60})
	if _, err := e.StartSession(fixedConfig(600)); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	e.Abort("test")

	if e.State() != StateReady {
		t.Errorf("expected READY, got %s", e.State())
	}
	if got := e.Stats(); got.Aborted != 1 || got.PaybackAccumulated != 60 {
		t.Errorf("expected abort consequences, got %+v", got)
	}
}

func TestAbortIgnoredInReady(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableStreaks: true})
	e.Abort("test")
	if e.State() != StateReady {
		t.Errorf("expected READY, got %s", e.State())
	}
	if e.Stats().Aborted != 0 {
		t.Error("abort in READY must not count")
	}
	if !hal.Logged("Abort ignored") {
		t.Error("expected ignored abort to be logged")
	}
}

func TestPenaltyPausesWhileInterlockInvalid(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableRewardCode: true, RewardPenalty: 300})
	startLocked(t, e, hal, 600)
	e.Abort("test")

	tickSeconds(e, hal, 10)
	hal.SetInterlock(false, false)
	tickSeconds(e, hal, 20)
	if got := e.Timers().PenaltyRemaining; got != 290 {
		t.Errorf("expected penalty paused at 290, got %d", got)
	}
	if _, ok := e.LastFault(); ok {
		t.Error("interlock loss in ABORTED is not a fault")
	}

	hal.SetInterlock(true, true)
	tickSeconds(e, hal, 10)
	if got := e.Timers().PenaltyRemaining; got != 280 {
		t.Errorf("expected penalty resumed to 280, got %d", got)
	}
}

func TestPaybackServedOnNextSession(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnablePaybackTime: true, PaybackTime: 60})
	e.Load(Snapshot{Stats: SessionStats{PaybackAccumulated: 60}})

	final := startLocked(t, e, hal, 600)
	if final != 660 {
		t.Errorf("expected 600+60, got %d", final)
	}
	timers := e.Timers()
	if timers.DebtCaptured != 60 || timers.PotentialDebtServed != 60 {
		t.Errorf("expected 60s debt captured and served, got %+v", timers)
	}

	tickSeconds(e, hal, 660)
	if e.State() != StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", e.State())
	}
	if got := e.Stats().PaybackAccumulated; got != 0 {
		t.Errorf("expected debt paid off, got %d", got)
	}
}

func TestPaybackPartiallyServedWhenClamped(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnablePaybackTime: true, PaybackTime: 60})
	e.Load(Snapshot{Stats: SessionStats{PaybackAccumulated: 600}})

	final := startLocked(t, e, hal, 14000)
	if final != 14400 {
		t.Fatalf("expected clamp to 14400, got %d", final)
	}
	if got := e.Timers().PotentialDebtServed; got != 400 {
		t.Errorf("expected 400s served, got %d", got)
	}
	tickSeconds(e, hal, 14400)
	if got := e.Stats().PaybackAccumulated; got != 200 {
		t.Errorf("expected 200s debt left, got %d", got)
	}
}

func TestSafetyFaultInLocked(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableRewardCode: true, RewardPenalty: 600})
	startLocked(t, e, hal, 600)

	hal.SetInterlock(false, false)
	tickSeconds(e, hal, 1)

	if e.State() != StateAborted {
		t.Fatalf("expected ABORTED, got %s", e.State())
	}
	fault, ok := e.LastFault()
	if !ok {
		t.Fatal("expected a recorded fault")
	}
	if fault.Reason != "Safety Disconnect" || fault.State != StateLocked {
		t.Errorf("unexpected fault %+v", fault)
	}
	if hal.Mask != 0 {
		t.Errorf("expected outputs released, got %#x", hal.Mask)
	}
}

func TestSafetyFaultInTesting(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableStreaks: true})
	if err := e.StartTest(); err != nil {
		t.Fatalf("StartTest: %v", err)
	}
	hal.SetInterlock(false, false)
	tickSeconds(e, hal, 1)

	if e.State() != StateReady {
		t.Errorf("expected READY, got %s", e.State())
	}
	if e.Stats().Aborted != 0 {
		t.Error("test faults carry no consequences")
	}
	if _, ok := e.LastFault(); !ok {
		t.Error("expected a recorded fault")
	}
}

func TestInterlockLossTolerated(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	startLocked(t, e, hal, 600)

	// Raw signal lost but still inside the grace period.
	hal.SetInterlock(false, true)
	tickSeconds(e, hal, 3)
	if e.State() != StateLocked {
		t.Errorf("expected LOCKED within grace, got %s", e.State())
	}
}

func TestButtonTriggerFlow(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	cfg := SessionConfig{
		DurationType:    DurationFixed,
		FixedDuration:   600,
		TriggerStrategy: StrategyButtonTrigger,
		ChannelDelays:   [MaxChannels]uint32{5, 0, 0, 0},
	}
	if _, err := e.StartSession(cfg); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if hal.WatchdogTimeout != DefaultWatchdogTimeout {
		t.Errorf("waiting for trigger is not critical, got watchdog %d", hal.WatchdogTimeout)
	}
	if hal.FailsafeArmed {
		t.Error("failsafe should not be armed while waiting for trigger")
	}

	tickSeconds(e, hal, 1)
	if got := e.Timers().TriggerTimeout; got != 1799 {
		t.Errorf("expected trigger timeout 1799, got %d", got)
	}
	if hal.Mask != 0 {
		t.Errorf("expected no outputs while waiting, got %#x", hal.Mask)
	}

	hal.SimulateTrigger()
	tickSeconds(e, hal, 1)
	timers := e.Timers()
	if !timers.Triggered {
		t.Fatal("expected triggered")
	}
	if timers.ChannelDelays[0] != 5 {
		t.Errorf("expected channel 1 delay to start at the trigger, got %d", timers.ChannelDelays[0])
	}
	if hal.Mask != 0x0E {
		t.Errorf("expected channels 2-4 energised, got %#x", hal.Mask)
	}
	if hal.WatchdogTimeout != CriticalWatchdogTimeout {
		t.Errorf("expected critical watchdog after trigger, got %d", hal.WatchdogTimeout)
	}

	tickSeconds(e, hal, 5)
	if e.State() != StateArmed {
		t.Fatalf("expected ARMED until delays expire, got %s", e.State())
	}
	tickSeconds(e, hal, 1)
	if e.State() != StateLocked {
		t.Fatalf("expected LOCKED, got %s", e.State())
	}
	if e.Timers().LockRemaining != 600 {
		t.Errorf("expected 600s remaining, got %d", e.Timers().LockRemaining)
	}
}

func TestButtonTriggerNoDelaysLocksImmediately(t *testing.T) {
	e, _ := newTestEngine(t, DeterrentConfig{})
	cfg := fixedConfig(600)
	cfg.TriggerStrategy = StrategyButtonTrigger
	if _, err := e.StartSession(cfg); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	e.Trigger("api")
	if e.State() != StateLocked {
		t.Errorf("expected LOCKED, got %s", e.State())
	}
}

func TestArmedTimeoutCancelsWithoutPenalty(t *testing.T) {
	defaults := testDefaults()
	defaults.ArmedTimeoutSeconds = 5
	e, hal := newTestEngineWithDefaults(t, defaults, DeterrentConfig{
		EnableStreaks: true, EnablePaybackTime: true, PaybackTime: 60,
	})
	before, _ := e.Rewards()

	cfg := fixedConfig(600)
	cfg.TriggerStrategy = StrategyButtonTrigger
	if _, err := e.StartSession(cfg); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	tickSeconds(e, hal, 4)
	if e.State() != StateArmed {
		t.Fatalf("expected ARMED, got %s", e.State())
	}
	tickSeconds(e, hal, 1)
	if e.State() != StateReady {
		t.Fatalf("expected READY after timeout, got %s", e.State())
	}
	if got := e.Stats(); got.Aborted != 0 || got.PaybackAccumulated != 0 {
		t.Errorf("timeout must not apply consequences, got %+v", got)
	}
	after, _ := e.Rewards()
	if after[0] != before[0] {
		t.Error("reward code should be preserved after timeout")
	}
}

func TestTriggerIgnoredOutsideButtonWait(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	if err := e.StartTest(); err != nil {
		t.Fatalf("StartTest: %v", err)
	}
	e.Trigger("api")
	if e.State() != StateTesting {
		t.Errorf("expected TESTING, got %s", e.State())
	}
	if !hal.Logged("Trigger ignored") {
		t.Error("expected ignored trigger to be logged")
	}
}

func TestModifyTime(t *testing.T) {
	det := DeterrentConfig{EnableTimeModification: true, TimeModificationStep: 300}
	e, _ := newTestEngine(t, det)

	if _, err := e.ModifyTime(true); !errors.Is(err, ErrWrongState) {
		t.Errorf("expected ErrWrongState in READY, got %v", err)
	}

	if _, err := e.StartSession(fixedConfig(350)); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	got, err := e.ModifyTime(false)
	if err != nil {
		t.Fatalf("ModifyTime: %v", err)
	}
	if got != 300 {
		t.Errorf("expected 350 to floor at 300, got %d", got)
	}

	got, _ = e.ModifyTime(false)
	if got != 300 {
		t.Errorf("expected 300 unchanged, got %d", got)
	}

	got, _ = e.ModifyTime(true)
	if got != 600 {
		t.Errorf("expected 600, got %d", got)
	}
	if e.Timers().LockDuration != 600 {
		t.Errorf("expected lock duration 600, got %d", e.Timers().LockDuration)
	}
}

func TestModifyTimeLockedMovesTotal(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableTimeModification: true, TimeModificationStep: 300})
	startLocked(t, e, hal, 600)
	tickSeconds(e, hal, 100)

	tests := []struct {
		increase      bool
		wantRemaining uint32
		wantDuration  uint32
	}{
		{true, 800, 900},
		{false, 500, 600},
		{false, 300, 400},
		{false, 300, 400},
	}
	for i, tt := range tests {
		got, err := e.ModifyTime(tt.increase)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		timers := e.Timers()
		if got != tt.wantRemaining || timers.LockRemaining != tt.wantRemaining {
			t.Errorf("step %d: remaining = %d, want %d", i, timers.LockRemaining, tt.wantRemaining)
		}
		if timers.LockDuration != tt.wantDuration {
			t.Errorf("step %d: duration = %d, want %d", i, timers.LockDuration, tt.wantDuration)
		}
	}
}

func TestModifyTimeCapsAtMax(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableTimeModification: true, TimeModificationStep: 300})
	startLocked(t, e, hal, 14300)

	got, err := e.ModifyTime(true)
	if err != nil {
		t.Fatalf("ModifyTime: %v", err)
	}
	if got != 14400 {
		t.Errorf("expected cap at 14400, got %d", got)
	}
}

func TestModifyTimeDisabled(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	startLocked(t, e, hal, 600)
	if _, err := e.ModifyTime(true); !errors.Is(err, ErrTimeModificationDisabled) {
		t.Errorf("expected ErrTimeModificationDisabled, got %v", err)
	}
}

func TestModifyTimeMovesDebtInLockstep(t *testing.T) {
	det := DeterrentConfig{
		EnablePaybackTime: true, PaybackTime: 60,
		EnableTimeModification: true, TimeModificationStep: 300,
	}
	e, _ := newTestEngine(t, det)
	e.Load(Snapshot{Stats: SessionStats{PaybackAccumulated: 120}})

	if _, err := e.StartSession(fixedConfig(600)); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if got := e.Timers().PotentialDebtServed; got != 120 {
		t.Fatalf("expected 120 served, got %d", got)
	}

	e.ModifyTime(false)
	if got := e.Timers().PotentialDebtServed; got != 0 {
		t.Errorf("expected served clamped to 0, got %d", got)
	}

	e.ModifyTime(true)
	if got := e.Timers().PotentialDebtServed; got != 120 {
		t.Errorf("expected served clamped to captured 120, got %d", got)
	}
}

func TestModifyTimeRearmsFailsafe(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableTimeModification: true, TimeModificationStep: 3600})
	startLocked(t, e, hal, 14000)
	if hal.FailsafeSeconds != 14400 {
		t.Fatalf("expected 4h failsafe, got %d", hal.FailsafeSeconds)
	}

	hal.DisarmFailsafeTimer()
	e.ModifyTime(false)
	if !hal.FailsafeArmed || hal.FailsafeSeconds != 14400 {
		t.Errorf("expected failsafe re-armed at 4h, got %d", hal.FailsafeSeconds)
	}
}

func TestKeepAliveStrikeout(t *testing.T) {
	defaults := testDefaults()
	defaults.KeepAliveIntervalMs = 10000
	defaults.KeepAliveMaxStrikes = 4
	e, hal := newTestEngineWithDefaults(t, defaults, DeterrentConfig{})

	if err := e.StartTest(); err != nil {
		t.Fatalf("StartTest: %v", err)
	}

	tickSeconds(e, hal, 10)
	if got := e.KeepAliveStrikes(); got != 1 {
		t.Errorf("expected 1 strike, got %d", got)
	}

	e.PetWatchdog()
	if got := e.KeepAliveStrikes(); got != 0 {
		t.Errorf("expected strikes reset, got %d", got)
	}

	tickSeconds(e, hal, 39)
	if e.State() != StateTesting {
		t.Fatalf("expected TESTING at 3 strikes, got %s", e.State())
	}
	tickSeconds(e, hal, 1)
	if e.State() != StateReady {
		t.Fatalf("expected READY after strikeout, got %s", e.State())
	}
	fault, ok := e.LastFault()
	if !ok || fault.Reason != "UI Watchdog Strikeout" {
		t.Errorf("expected strikeout fault, got %+v", fault)
	}
}

func TestKeepAliveNotArmedInReady(t *testing.T) {
	defaults := testDefaults()
	defaults.KeepAliveIntervalMs = 1000
	defaults.KeepAliveMaxStrikes = 2
	e, hal := newTestEngineWithDefaults(t, defaults, DeterrentConfig{})

	tickSeconds(e, hal, 10)
	if got := e.KeepAliveStrikes(); got != 0 {
		t.Errorf("expected no strikes in READY, got %d", got)
	}
}

func TestTestModeRunsOut(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	if err := e.StartTest(); err != nil {
		t.Fatalf("StartTest: %v", err)
	}
	if hal.Mask != 0x0F || !hal.FailsafeArmed {
		t.Error("expected all channels energised and failsafe armed")
	}
	if err := e.StartTest(); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	tickSeconds(e, hal, 240)
	if e.State() != StateReady {
		t.Errorf("expected READY after test, got %s", e.State())
	}
}

func TestStartTestRequiresInterlock(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	hal.SetInterlock(false, false)
	if err := e.StartTest(); !errors.Is(err, ErrInterlock) {
		t.Errorf("expected ErrInterlock, got %v", err)
	}
}

func TestShortPress(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})

	hal.SimulateShortPress()
	tickSeconds(e, hal, 1)
	if e.State() != StateTesting {
		t.Fatalf("expected TESTING, got %s", e.State())
	}

	hal.SimulateShortPress()
	tickSeconds(e, hal, 1)
	if e.State() != StateReady {
		t.Fatalf("expected READY, got %s", e.State())
	}

	startLocked(t, e, hal, 10)
	tickSeconds(e, hal, 10)
	if e.State() != StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", e.State())
	}
	hal.SimulateShortPress()
	tickSeconds(e, hal, 1)
	if e.State() != StateReady {
		t.Errorf("expected READY after acknowledge press, got %s", e.State())
	}
}

func TestHardwareAbortEdge(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableStreaks: true})
	startLocked(t, e, hal, 600)

	hal.SimulateAbort()
	tickSeconds(e, hal, 1)
	if e.State() != StateReady {
		t.Errorf("expected READY, got %s", e.State())
	}
	if e.Stats().Aborted != 1 {
		t.Error("expected abort to count")
	}
}

func TestProvisioning(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableRewardCode: true, RewardPenalty: 300})
	startLocked(t, e, hal, 600)

	hal.Provisioning = true
	tickSeconds(e, hal, 1)
	if e.State() != StateAborted {
		t.Fatalf("expected ABORTED on network failure, got %s", e.State())
	}
	if hal.ProvisioningEntered != 0 {
		t.Error("provisioning must not start in the same tick as the abort")
	}

	tickSeconds(e, hal, 1)
	if hal.ProvisioningEntered != 1 {
		t.Errorf("expected provisioning once the state is safe, got %d", hal.ProvisioningEntered)
	}
}

func TestRecover(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want DeviceState
	}{
		{"locked aborts", Snapshot{State: StateLocked, Timers: SessionTimers{LockDuration: 600, LockRemaining: 300}}, StateReady},
		{"armed aborts", Snapshot{State: StateArmed, Timers: SessionTimers{LockDuration: 600}}, StateReady},
		{"testing resets", Snapshot{State: StateTesting, Timers: SessionTimers{TestRemaining: 100}}, StateReady},
		{"completed resets", Snapshot{State: StateCompleted}, StateReady},
		{"penalty resumes", Snapshot{State: StateAborted, Timers: SessionTimers{PenaltyRemaining: 50}}, StateAborted},
		{"ready stays", Snapshot{State: StateReady}, StateReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, DeterrentConfig{EnableStreaks: true})
			e.Load(tt.snap)
			e.Recover()
			if e.State() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, e.State())
			}
		})
	}
}

func TestRecoverLockedCountsAbort(t *testing.T) {
	e, _ := newTestEngine(t, DeterrentConfig{EnableStreaks: true})
	e.Load(Snapshot{
		State:  StateLocked,
		Timers: SessionTimers{LockDuration: 600, LockRemaining: 300},
		Stats:  SessionStats{Streaks: 2},
	})
	e.Recover()

	if got := e.Stats(); got.Streaks != 0 || got.Aborted != 1 {
		t.Errorf("expected reboot to count as abort, got %+v", got)
	}
}

func TestRecoverResumesPenalty(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	e.Load(Snapshot{State: StateAborted, Timers: SessionTimers{PenaltyRemaining: 3}})
	e.Recover()

	tickSeconds(e, hal, 3)
	if e.State() != StateReady {
		t.Errorf("expected READY after resumed penalty, got %s", e.State())
	}
}

func TestRecoverAbortedWithoutPenalty(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	e.Load(Snapshot{State: StateAborted})
	e.Recover()

	if e.State() != StateReady {
		t.Fatalf("expected READY, got %s", e.State())
	}
	if _, ok := e.Rewards(); !ok {
		t.Error("expected reward codes visible again")
	}
	if _, err := e.StartSession(fixedConfig(600)); err != nil {
		t.Errorf("StartSession after recovery: %v", err)
	}
	tickSeconds(e, hal, 1)
	if e.State() != StateLocked {
		t.Errorf("expected LOCKED, got %s", e.State())
	}
}

func TestAbortedWithoutPenaltyLeavesOnTick(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	e.Load(Snapshot{State: StateAborted})

	tickSeconds(e, hal, 1)
	if e.State() != StateReady {
		t.Errorf("expected READY, got %s", e.State())
	}
}

func TestPenaltyCountsFromAbort(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableRewardCode: true, RewardPenalty: 300})
	startLocked(t, e, hal, 600)

	hal.Advance(900)
	e.Tick()
	e.Abort("api")
	hal.Advance(100)
	e.Tick()

	if got := e.Timers().PenaltyRemaining; got != 300 {
		t.Errorf("a partial second before the abort was counted: remaining %d", got)
	}
	hal.Advance(900)
	e.Tick()
	if got := e.Timers().PenaltyRemaining; got != 299 {
		t.Errorf("expected 299 one second after the abort, got %d", got)
	}
}

func TestChannelDelaysCountFromTrigger(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	cfg := fixedConfig(600)
	cfg.TriggerStrategy = StrategyButtonTrigger
	cfg.ChannelDelays = [MaxChannels]uint32{3, 0, 0, 0}
	if _, err := e.StartSession(cfg); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	hal.Advance(900)
	e.Tick()
	e.Trigger("api")
	hal.Advance(100)
	e.Tick()
	if got := e.Timers().ChannelDelays[0]; got != 3 {
		t.Errorf("a partial second before the trigger was counted: delay %d", got)
	}
	hal.Advance(900)
	e.Tick()
	if got := e.Timers().ChannelDelays[0]; got != 2 {
		t.Errorf("expected delay 2 one second after the trigger, got %d", got)
	}
}

func TestLoadKeepsRewardHistory(t *testing.T) {
	e, _ := newTestEngine(t, DeterrentConfig{})
	var snap Snapshot
	snap.Rewards[0] = Reward{Code: "UUUU", Checksum: Checksum("UUUU")}
	e.Load(snap)

	rewards, _ := e.Rewards()
	if rewards[0].Code != "UUUU" {
		t.Errorf("expected restored code, got %q", rewards[0].Code)
	}
}

func TestDisabledChannelMasked(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	hal.Enabled[3] = false
	startLocked(t, e, hal, 60)
	if hal.Mask != 0x07 {
		t.Errorf("expected channel 4 filtered, got %#x", hal.Mask)
	}
}

func TestPersistsEverySecondWhileLocked(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	startLocked(t, e, hal, 600)

	n := len(hal.Saved)
	tickSeconds(e, hal, 5)
	if got := len(hal.Saved) - n; got != 5 {
		t.Errorf("expected 5 saves, got %d", got)
	}
	last, _ := hal.LastSaved()
	if last.Timers.LockRemaining != 595 {
		t.Errorf("expected 595 persisted, got %d", last.Timers.LockRemaining)
	}
	if last.Rewards[0].Code == "" {
		t.Error("persisted snapshot must keep reward codes")
	}
}

func TestCatchUpAfterLongTick(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	startLocked(t, e, hal, 600)

	hal.Advance(10500)
	e.Tick()
	if got := e.Timers().LockRemaining; got != 590 {
		t.Errorf("expected 10 seconds counted, got %d remaining", got)
	}
	hal.Advance(500)
	e.Tick()
	if got := e.Timers().LockRemaining; got != 589 {
		t.Errorf("expected carried half second to count, got %d remaining", got)
	}
}

func TestUpdateSettings(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	p := testPresets()
	p.MaxSessionDuration = 7200

	if err := e.UpdateSettings(p, DeterrentConfig{EnableStreaks: true}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if e.Presets().MaxSessionDuration != 7200 || !e.Deterrents().EnableStreaks {
		t.Error("settings not applied")
	}

	startLocked(t, e, hal, 60)
	if err := e.UpdateSettings(p, DeterrentConfig{}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy while LOCKED, got %v", err)
	}
}

func TestAcknowledgeWrongState(t *testing.T) {
	e, _ := newTestEngine(t, DeterrentConfig{})
	if err := e.Acknowledge(); !errors.Is(err, ErrWrongState) {
		t.Errorf("expected ErrWrongState, got %v", err)
	}
}

func TestSaveErrorLogged(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{})
	hal.SaveError = errors.New("disk full")
	startLocked(t, e, hal, 60)
	if !hal.Logged("disk full") {
		t.Error("expected save error to be logged")
	}
}

func TestFailsafeDuration(t *testing.T) {
	tests := []struct {
		target, maxLock, want uint32
	}{
		{60, 0, 4 * 3600},
		{4 * 3600, 0, 4 * 3600},
		{4*3600 + 1, 0, 8 * 3600},
		{30000, 14400, 12 * 3600},
		{100, 3600, 3600},
		{1000000, 0, 168 * 3600},
	}

	for _, tt := range tests {
		if got := FailsafeDuration(tt.target, tt.maxLock); got != tt.want {
			t.Errorf("FailsafeDuration(%d, %d) = %d, want %d", tt.target, tt.maxLock, got, tt.want)
		}
	}
}

func TestDiagnostics(t *testing.T) {
	e, hal := newTestEngine(t, DeterrentConfig{EnableStreaks: true})
	e.Diagnostics()

	for _, want := range []string{
		"State: READY",
		"Interlock: engaged=true valid=true",
		"Settings check: OK",
		"Presets: short 10min-30min",
		"Deterrents: streaks=true",
	} {
		if !hal.Logged(want) {
			t.Errorf("expected diagnostics line %q in %v", want, hal.Logs)
		}
	}

	bad := testPresets()
	bad.MinSessionDuration = 0
	e2 := NewEngine(hal, StandardRules{}, testDefaults(), bad, DeterrentConfig{})
	e2.Diagnostics()
	if !hal.Logged("Settings check: FAILED") {
		t.Error("expected failed settings check to be logged")
	}
}
