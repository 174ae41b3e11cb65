package web

import (
	"fmt"
	"time"

	"github.com/sweeney/lockbox/internal/config"
	"github.com/sweeney/lockbox/internal/session"
	"github.com/sweeney/lockbox/internal/store"
)

// ArmRequest is the body of POST /arm.
type ArmRequest struct {
	DurationType    string   `json:"duration_type"`
	Duration        uint32   `json:"duration"`
	MinDuration     uint32   `json:"min_duration"`
	MaxDuration     uint32   `json:"max_duration"`
	TriggerStrategy string   `json:"trigger_strategy"`
	ChannelDelays   []uint32 `json:"channel_delays"`
	HideTimer       bool     `json:"hide_timer"`
	DisableLED      bool     `json:"disable_led"`
}

var durationTypes = map[string]session.DurationType{
	"fixed":  session.DurationFixed,
	"random": session.DurationRandom,
	"short":  session.DurationShort,
	"medium": session.DurationMedium,
	"long":   session.DurationLong,
}

// SessionConfig converts the request. Missing channel delays are zero.
func (r ArmRequest) SessionConfig() (session.SessionConfig, error) {
	dt, ok := durationTypes[r.DurationType]
	if !ok {
		return session.SessionConfig{}, fmt.Errorf("unknown duration type %q", r.DurationType)
	}
	cfg := session.SessionConfig{
		DurationType:  dt,
		FixedDuration: r.Duration,
		MinDuration:   r.MinDuration,
		MaxDuration:   r.MaxDuration,
		HideTimer:     r.HideTimer,
		DisableLED:    r.DisableLED,
	}
	switch r.TriggerStrategy {
	case "", "auto":
		cfg.TriggerStrategy = session.StrategyAutoCountdown
	case "button":
		cfg.TriggerStrategy = session.StrategyButtonTrigger
	default:
		return session.SessionConfig{}, fmt.Errorf("unknown trigger strategy %q", r.TriggerStrategy)
	}
	if len(r.ChannelDelays) > session.MaxChannels {
		return session.SessionConfig{}, fmt.Errorf("at most %d channel delays", session.MaxChannels)
	}
	copy(cfg.ChannelDelays[:], r.ChannelDelays)
	return cfg, nil
}

// ArmResponse reports the final lock duration. It is omitted for hidden
// timers.
type ArmResponse struct {
	State        string  `json:"state"`
	LockDuration *uint32 `json:"lock_duration,omitempty"`
}

// ModifyTimeRequest is the body of POST /modify-time.
type ModifyTimeRequest struct {
	Direction string `json:"direction"`
}

// SettingsRequest is the body of POST /settings. Fields left out keep their
// current values.
type SettingsRequest struct {
	Presets    config.Presets    `json:"presets"`
	Deterrents config.Deterrents `json:"deterrents"`
}

// SettingsResponse lists what normalisation changed.
type SettingsResponse struct {
	Corrections []string `json:"corrections"`
	Fingerprint string   `json:"settings_fingerprint"`
}

// DetailsJSON is the body of GET /details.
type DetailsJSON struct {
	Presets    PresetsJSON    `json:"presets"`
	Deterrents DeterrentsJSON `json:"deterrents"`
	System     SystemJSON     `json:"system"`
}

type PresetsJSON struct {
	ShortMin   uint32 `json:"short_min"`
	ShortMax   uint32 `json:"short_max"`
	MediumMin  uint32 `json:"medium_min"`
	MediumMax  uint32 `json:"medium_max"`
	LongMin    uint32 `json:"long_min"`
	LongMax    uint32 `json:"long_max"`
	MinSession uint32 `json:"min_session"`
	MaxSession uint32 `json:"max_session"`
}

type DeterrentsJSON struct {
	EnableStreaks          bool   `json:"enable_streaks"`
	EnableRewardCode       bool   `json:"enable_reward_code"`
	RewardPenaltyStrategy  string `json:"reward_penalty_strategy"`
	RewardPenaltyMin       uint32 `json:"reward_penalty_min"`
	RewardPenaltyMax       uint32 `json:"reward_penalty_max"`
	RewardPenalty          uint32 `json:"reward_penalty"`
	EnablePayback          bool   `json:"enable_payback"`
	PaybackStrategy        string `json:"payback_strategy"`
	PaybackMin             uint32 `json:"payback_min"`
	PaybackMax             uint32 `json:"payback_max"`
	Payback                uint32 `json:"payback"`
	EnableTimeModification bool   `json:"enable_time_modification"`
	TimeModificationStep   uint32 `json:"time_modification_step"`
}

type SystemJSON struct {
	LongPressMs         uint32 `json:"long_press_ms"`
	InterlockOnDelay    uint32 `json:"interlock_on_delay"`
	TestMode            uint32 `json:"test_mode"`
	FailsafeMaxLock     uint32 `json:"failsafe_max_lock"`
	KeepAliveIntervalMs uint32 `json:"keepalive_interval_ms"`
	KeepAliveMaxStrikes uint32 `json:"keepalive_max_strikes"`
	ArmedTimeout        uint32 `json:"armed_timeout"`
}

func buildDetails(p session.SessionPresets, d session.DeterrentConfig, sys session.SystemDefaults) DetailsJSON {
	return DetailsJSON{
		Presets: PresetsJSON{
			ShortMin:   p.ShortMin,
			ShortMax:   p.ShortMax,
			MediumMin:  p.MediumMin,
			MediumMax:  p.MediumMax,
			LongMin:    p.LongMin,
			LongMax:    p.LongMax,
			MinSession: p.MinSessionDuration,
			MaxSession: p.MaxSessionDuration,
		},
		Deterrents: DeterrentsJSON{
			EnableStreaks:          d.EnableStreaks,
			EnableRewardCode:       d.EnableRewardCode,
			RewardPenaltyStrategy:  d.RewardPenaltyStrategy.String(),
			RewardPenaltyMin:       d.RewardPenaltyMin,
			RewardPenaltyMax:       d.RewardPenaltyMax,
			RewardPenalty:          d.RewardPenalty,
			EnablePayback:          d.EnablePaybackTime,
			PaybackStrategy:        d.PaybackTimeStrategy.String(),
			PaybackMin:             d.PaybackTimeMin,
			PaybackMax:             d.PaybackTimeMax,
			Payback:                d.PaybackTime,
			EnableTimeModification: d.EnableTimeModification,
			TimeModificationStep:   d.TimeModificationStep,
		},
		System: SystemJSON{
			LongPressMs:         sys.LongPressMs,
			InterlockOnDelay:    sys.ExtButtonSignalSeconds,
			TestMode:            sys.TestModeSeconds,
			FailsafeMaxLock:     sys.FailsafeMaxLockSeconds,
			KeepAliveIntervalMs: sys.KeepAliveIntervalMs,
			KeepAliveMaxStrikes: sys.KeepAliveMaxStrikes,
			ArmedTimeout:        sys.ArmedTimeoutSeconds,
		},
	}
}

// RewardJSON is one entry of GET /reward, current code first.
type RewardJSON struct {
	Code     string `json:"code"`
	Checksum string `json:"checksum"`
}

// HistoryJSON is one row of GET /history.
type HistoryJSON struct {
	ID           string `json:"id"`
	StartedAt    string `json:"started_at"`
	EndedAt      string `json:"ended_at,omitempty"`
	Outcome      string `json:"outcome"`
	LockDuration uint32 `json:"lock_duration"`
	Penalty      uint32 `json:"penalty_s"`
	Payback      uint32 `json:"payback_s"`
}

func historyJSON(rec store.SessionRecord) HistoryJSON {
	h := HistoryJSON{
		ID:           rec.ID,
		StartedAt:    rec.StartedAt.UTC().Format(time.RFC3339),
		Outcome:      string(rec.Outcome),
		LockDuration: rec.LockDuration,
		Penalty:      rec.PenaltySeconds,
		Payback:      rec.PaybackSeconds,
	}
	if !rec.EndedAt.IsZero() {
		h.EndedAt = rec.EndedAt.UTC().Format(time.RFC3339)
	}
	return h
}
