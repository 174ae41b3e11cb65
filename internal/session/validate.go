package session

import (
	"errors"
	"fmt"
)

// ValidateSessionConfig checks a session request against the installed
// channels. channelEnabled reports whether channel i is installed.
func ValidateSessionConfig(cfg SessionConfig, channelEnabled func(int) bool) error {
	switch cfg.DurationType {
	case DurationFixed:
		if cfg.FixedDuration == 0 {
			return errors.New("fixed duration must be non-zero")
		}
	case DurationRandom:
		if cfg.MinDuration >= cfg.MaxDuration {
			return errors.New("min duration must be less than max duration")
		}
	case DurationShort, DurationMedium, DurationLong:
	default:
		return fmt.Errorf("unknown duration type %d", cfg.DurationType)
	}

	switch cfg.TriggerStrategy {
	case StrategyAutoCountdown, StrategyButtonTrigger:
	default:
		return fmt.Errorf("unknown trigger strategy %d", cfg.TriggerStrategy)
	}

	anyEnabled := false
	for i, d := range cfg.ChannelDelays {
		enabled := channelEnabled(i)
		anyEnabled = anyEnabled || enabled
		if d > MaxChannelDelay {
			return fmt.Errorf("channel %d delay %ds exceeds %ds", i+1, d, MaxChannelDelay)
		}
		if d > 0 && !enabled {
			return fmt.Errorf("channel %d is not installed", i+1)
		}
	}
	if !anyEnabled {
		return errors.New("no channels installed")
	}
	return nil
}

// CheckSettings is the self-check for presets and deterrents: ranges are
// ordered and non-zero, and no deterrent exceeds the session ceiling.
func CheckSettings(presets SessionPresets, deterrents DeterrentConfig) error {
	if presets.MinSessionDuration == 0 {
		return errors.New("min session duration is zero")
	}
	if presets.MinSessionDuration >= presets.MaxSessionDuration {
		return errors.New("min session duration must be less than max")
	}
	if presets.MaxSessionDuration > AbsoluteMaxSession {
		return fmt.Errorf("max session duration exceeds %ds", AbsoluteMaxSession)
	}
	if presets.ShortMin > presets.ShortMax {
		return errors.New("short range inverted")
	}
	if presets.MediumMin > presets.MediumMax {
		return errors.New("medium range inverted")
	}
	if presets.LongMin > presets.LongMax {
		return errors.New("long range inverted")
	}

	ceiling := presets.MaxSessionDuration
	if deterrents.EnableRewardCode {
		if err := checkDeterrent("reward penalty", deterrents.RewardPenaltyStrategy, deterrents.RewardPenalty,
			deterrents.RewardPenaltyMin, deterrents.RewardPenaltyMax, ceiling); err != nil {
			return err
		}
	}
	if deterrents.EnablePaybackTime {
		if err := checkDeterrent("payback", deterrents.PaybackTimeStrategy, deterrents.PaybackTime,
			deterrents.PaybackTimeMin, deterrents.PaybackTimeMax, ceiling); err != nil {
			return err
		}
	}
	if deterrents.EnableTimeModification && deterrents.TimeModificationStep == 0 {
		return errors.New("time modification step is zero")
	}
	return nil
}

func checkDeterrent(name string, strategy DeterrentStrategy, fixed, min, max, ceiling uint32) error {
	if strategy == DeterrentFixed {
		if fixed == 0 {
			return fmt.Errorf("%s is zero", name)
		}
		if fixed > ceiling {
			return fmt.Errorf("%s %ds exceeds session max %ds", name, fixed, ceiling)
		}
		return nil
	}
	if min == 0 {
		return fmt.Errorf("%s min is zero", name)
	}
	if min >= max {
		return fmt.Errorf("%s min must be less than max", name)
	}
	if max > ceiling {
		return fmt.Errorf("%s max %ds exceeds session max %ds", name, max, ceiling)
	}
	return nil
}
