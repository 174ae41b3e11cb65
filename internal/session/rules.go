package session

// Rules is the consequence policy. Implementations are pure functions over
// stats and config; the only outside input is the random source passed to
// OnAbort.
type Rules interface {
	// ProcessStartRequest returns the final lock duration for a base
	// duration, or 0 if the start must be rejected.
	ProcessStartRequest(base uint32, presets SessionPresets, deterrents DeterrentConfig, stats SessionStats) uint32

	// OnTickLocked is called once per locked second.
	OnTickLocked(stats *SessionStats)

	// OnCompletion is called when the lock countdown reaches zero.
	OnCompletion(stats *SessionStats, timers SessionTimers, deterrents DeterrentConfig)

	// OnAbort applies abort penalties and decides on the penalty box.
	OnAbort(stats *SessionStats, deterrents DeterrentConfig, presets SessionPresets, rng Random) AbortConsequences
}

// StandardRules is the default consequence policy.
type StandardRules struct{}

var _ Rules = StandardRules{}

func (StandardRules) ProcessStartRequest(base uint32, presets SessionPresets, deterrents DeterrentConfig, stats SessionStats) uint32 {
	if base < presets.MinSessionDuration {
		return 0
	}
	final := uint64(base)
	if deterrents.EnablePaybackTime {
		final += uint64(stats.PaybackAccumulated)
	}
	if final > uint64(presets.MaxSessionDuration) {
		final = uint64(presets.MaxSessionDuration)
	}
	return uint32(final)
}

func (StandardRules) OnTickLocked(stats *SessionStats) {
	stats.TotalLockedTime++
}

func (StandardRules) OnCompletion(stats *SessionStats, timers SessionTimers, deterrents DeterrentConfig) {
	if timers.PotentialDebtServed >= stats.PaybackAccumulated {
		stats.PaybackAccumulated = 0
	} else {
		stats.PaybackAccumulated -= timers.PotentialDebtServed
	}
	stats.Completed++
	if deterrents.EnableStreaks {
		stats.Streaks++
	}
}

func (StandardRules) OnAbort(stats *SessionStats, deterrents DeterrentConfig, presets SessionPresets, rng Random) AbortConsequences {
	var result AbortConsequences

	if deterrents.EnableStreaks {
		stats.Streaks = 0
		stats.Aborted++
	}

	if deterrents.EnablePaybackTime {
		add := drawDeterrent(deterrents.PaybackTimeStrategy, deterrents.PaybackTime,
			deterrents.PaybackTimeMin, deterrents.PaybackTimeMax, presets.MaxSessionDuration, rng)
		stats.PaybackAccumulated = addClamped(stats.PaybackAccumulated, add)
	}

	if deterrents.EnableRewardCode {
		result.EnterPenaltyBox = true
		result.PenaltyDuration = drawDeterrent(deterrents.RewardPenaltyStrategy, deterrents.RewardPenalty,
			deterrents.RewardPenaltyMin, deterrents.RewardPenaltyMax, presets.MaxSessionDuration, rng)
	}
	return result
}

// drawDeterrent resolves a fixed or random deterrent value, rounded up to a
// whole minute and clamped to ceiling.
func drawDeterrent(strategy DeterrentStrategy, fixed, min, max, ceiling uint32, rng Random) uint32 {
	v := fixed
	if strategy == DeterrentRandom {
		if min > max {
			min, max = max, min
		}
		v = rng.Random(min, max)
	}
	v = RoundUpToMinute(v)
	if v > ceiling {
		v = ceiling
	}
	return v
}

// RoundUpToMinute rounds seconds up to the next multiple of 60. Aligned
// values are unchanged.
func RoundUpToMinute(secs uint32) uint32 {
	r := (uint64(secs) + 59) / 60 * 60
	if r > uint64(^uint32(0)) {
		return secs
	}
	return uint32(r)
}

func addClamped(a, b uint32) uint32 {
	s := uint64(a) + uint64(b)
	if s > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(s)
}
