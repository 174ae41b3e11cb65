// Package session contains the lock session state machine and its
// consequence rules. This package has NO hardware, storage or network
// dependencies: every side effect goes through the HAL interface and time is
// read from HAL.Millis, so the whole engine runs under test with FakeHAL.
package session

// DeviceState is the state of the session state machine.
type DeviceState uint8

const (
	StateReady DeviceState = iota
	StateArmed
	StateLocked
	StateAborted
	StateCompleted
	StateTesting
)

func (s DeviceState) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateArmed:
		return "ARMED"
	case StateLocked:
		return "LOCKED"
	case StateAborted:
		return "ABORTED"
	case StateCompleted:
		return "COMPLETED"
	case StateTesting:
		return "TESTING"
	}
	return "UNKNOWN"
}

// ParseState is the inverse of DeviceState.String.
func ParseState(s string) (DeviceState, bool) {
	for st := StateReady; st <= StateTesting; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return StateReady, false
}

// TriggerStrategy selects how an armed session becomes locked.
type TriggerStrategy uint8

const (
	StrategyAutoCountdown TriggerStrategy = iota
	StrategyButtonTrigger
)

func (t TriggerStrategy) String() string {
	switch t {
	case StrategyAutoCountdown:
		return "autoCountdown"
	case StrategyButtonTrigger:
		return "buttonTrigger"
	}
	return "unknown"
}

// DurationType selects how the base lock duration is resolved.
type DurationType uint8

const (
	DurationFixed DurationType = iota
	DurationRandom
	DurationShort
	DurationMedium
	DurationLong
)

func (d DurationType) String() string {
	switch d {
	case DurationFixed:
		return "fixed"
	case DurationRandom:
		return "random"
	case DurationShort:
		return "short"
	case DurationMedium:
		return "medium"
	case DurationLong:
		return "long"
	}
	return "unknown"
}

// DeterrentStrategy selects between a fixed value and a random draw.
type DeterrentStrategy uint8

const (
	DeterrentFixed DeterrentStrategy = iota
	DeterrentRandom
)

func (d DeterrentStrategy) String() string {
	if d == DeterrentRandom {
		return "random"
	}
	return "fixed"
}

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeAborted Outcome = "ABORTED"
	OutcomeUnknown Outcome = "UNKNOWN"
)

const (
	// MaxChannels is the number of lock channels the engine drives.
	MaxChannels = 4

	// RewardHistorySize is the number of remembered reward codes.
	RewardHistorySize = 10
	// RewardCodeLength is the number of direction symbols in a code.
	RewardCodeLength = 32

	// MaxChannelDelay is the longest per-channel delay accepted (1 hour).
	MaxChannelDelay = 3600

	// AbsoluteMaxSession is the hard ceiling for any session (2 weeks).
	AbsoluteMaxSession = 14 * 24 * 3600

	// CriticalWatchdogTimeout and DefaultWatchdogTimeout are in seconds.
	CriticalWatchdogTimeout = 5
	DefaultWatchdogTimeout  = 20
)

// SessionConfig holds the user-chosen parameters of a session about to start.
type SessionConfig struct {
	DurationType    DurationType
	FixedDuration   uint32
	MinDuration     uint32
	MaxDuration     uint32
	TriggerStrategy TriggerStrategy
	ChannelDelays   [MaxChannels]uint32
	HideTimer       bool
	DisableLED      bool
}

// SessionPresets are the operator-configured generator ranges and the
// absolute floor and ceiling for session durations (seconds).
type SessionPresets struct {
	ShortMin, ShortMax   uint32
	MediumMin, MediumMax uint32
	LongMin, LongMax     uint32

	MinSessionDuration uint32
	MaxSessionDuration uint32
}

// DeterrentConfig toggles and parameterises the abort consequences.
type DeterrentConfig struct {
	EnableStreaks bool

	EnableRewardCode      bool
	RewardPenaltyStrategy DeterrentStrategy
	RewardPenaltyMin      uint32
	RewardPenaltyMax      uint32
	RewardPenalty         uint32

	EnablePaybackTime   bool
	PaybackTimeStrategy DeterrentStrategy
	PaybackTimeMin      uint32
	PaybackTimeMax      uint32
	PaybackTime         uint32

	EnableTimeModification bool
	TimeModificationStep   uint32
}

// SystemDefaults are device-level timing parameters.
type SystemDefaults struct {
	LongPressMs            uint32
	ExtButtonSignalSeconds uint32
	TestModeSeconds        uint32
	FailsafeMaxLockSeconds uint32
	KeepAliveIntervalMs    uint32
	KeepAliveMaxStrikes    uint32
	ArmedTimeoutSeconds    uint32
	BrokerMaxRetries       uint32
}

// SessionTimers is the per-session countdown state. All values are seconds.
type SessionTimers struct {
	LockDuration     uint32
	LockRemaining    uint32
	PenaltyDuration  uint32
	PenaltyRemaining uint32
	TestRemaining    uint32
	TriggerTimeout   uint32
	ChannelDelays    [MaxChannels]uint32

	// PotentialDebtServed is the part of the payback debt this session pays
	// off on completion. Never exceeds DebtCaptured.
	PotentialDebtServed uint32
	// DebtCaptured is the payback debt at session start.
	DebtCaptured uint32
	// Triggered is set once an armed session has started its channel
	// countdown (immediately for auto countdown, on trigger otherwise).
	Triggered bool
}

// SessionStats are cross-session accumulators.
type SessionStats struct {
	Streaks            uint32
	Completed          uint32
	Aborted            uint32
	PaybackAccumulated uint32
	TotalLockedTime    uint32
}

// Reward is one remembered unlock code and its checksum.
type Reward struct {
	Code     string
	Checksum string
}

// Snapshot is a point-in-time copy of all engine state.
// It is a value type, safe to use after the engine lock is released.
type Snapshot struct {
	State   DeviceState
	Timers  SessionTimers
	Stats   SessionStats
	Config  SessionConfig
	Rewards [RewardHistorySize]Reward
}

// Fault records a safety fault the engine resolved by forcing a transition.
type Fault struct {
	Reason string
	State  DeviceState // state the fault was raised in
	AtMs   uint64      // HAL clock
}

// AbortConsequences is the Rules decision for an abort.
type AbortConsequences struct {
	EnterPenaltyBox bool
	PenaltyDuration uint32
}
