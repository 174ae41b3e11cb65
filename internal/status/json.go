package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/lockbox/internal/session"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details. Reward codes are never part of
// the status.
type StatusInner struct {
	Event            string       `json:"event,omitempty"`
	Reason           string       `json:"reason,omitempty"`
	State            string       `json:"state"`
	SessionID        string       `json:"session_id,omitempty"`
	Timers           TimersJSON   `json:"timers"`
	Stats            StatsJSON    `json:"stats"`
	Session          SessionJSON  `json:"session"`
	Hardware         HardwareJSON `json:"hardware"`
	KeepAliveStrikes uint32       `json:"keepalive_strikes"`
	LastFault        *FaultJSON   `json:"last_fault,omitempty"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	StartTime        string       `json:"start_time"`
	Timestamp        string       `json:"timestamp"`
	MQTT             MQTTStatus   `json:"mqtt"`
	Config           ConfigJSON   `json:"config"`
}

// TimersJSON is the JSON representation of the session timers. The lock
// duration and remaining time are left out when the session hides its timer.
type TimersJSON struct {
	LockDuration     *uint32                     `json:"lock_duration,omitempty"`
	LockRemaining    *uint32                     `json:"lock_remaining,omitempty"`
	PenaltyRemaining uint32                      `json:"penalty_remaining"`
	TestRemaining    uint32                      `json:"test_remaining"`
	TriggerTimeout   uint32                      `json:"trigger_timeout"`
	ChannelDelays    [session.MaxChannels]uint32 `json:"channel_delays"`
	Triggered        bool                        `json:"triggered"`
	DebtServed       uint32                      `json:"debt_served"`
}

// StatsJSON is the JSON representation of the cross-session stats.
type StatsJSON struct {
	Streaks         uint32 `json:"streaks"`
	Completed       uint32 `json:"completed"`
	Aborted         uint32 `json:"aborted"`
	PaybackSeconds  uint32 `json:"payback_s"`
	TotalLockedTime uint32 `json:"total_locked_s"`
}

// SessionJSON describes the active session request.
type SessionJSON struct {
	DurationType    string `json:"duration_type"`
	TriggerStrategy string `json:"trigger_strategy"`
	HideTimer       bool   `json:"hide_timer"`
	DisableLED      bool   `json:"disable_led"`
}

// HardwareJSON reports the device inputs, outputs and safety timers.
type HardwareJSON struct {
	InterlockEngaged bool                      `json:"interlock_engaged"`
	InterlockValid   bool                      `json:"interlock_valid"`
	Channels         [session.MaxChannels]bool `json:"channels"`
	FailsafeArmed    bool                      `json:"failsafe_armed"`
	FailsafeDeadline string                    `json:"failsafe_deadline,omitempty"`
	WatchdogSeconds  int64                     `json:"watchdog_s"`
}

// FaultJSON is the last safety fault.
type FaultJSON struct {
	Reason string `json:"reason"`
	State  string `json:"state"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Fingerprint string `json:"settings_fingerprint,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	s := snap.Session
	inner := StatusInner{
		State:     s.State.String(),
		SessionID: snap.SessionID,
		Timers: TimersJSON{
			PenaltyRemaining: s.Timers.PenaltyRemaining,
			TestRemaining:    s.Timers.TestRemaining,
			TriggerTimeout:   s.Timers.TriggerTimeout,
			ChannelDelays:    s.Timers.ChannelDelays,
			Triggered:        s.Timers.Triggered,
			DebtServed:       s.Timers.PotentialDebtServed,
		},
		Stats: StatsJSON{
			Streaks:         s.Stats.Streaks,
			Completed:       s.Stats.Completed,
			Aborted:         s.Stats.Aborted,
			PaybackSeconds:  s.Stats.PaybackAccumulated,
			TotalLockedTime: s.Stats.TotalLockedTime,
		},
		Session: SessionJSON{
			DurationType:    s.Config.DurationType.String(),
			TriggerStrategy: s.Config.TriggerStrategy.String(),
			HideTimer:       s.Config.HideTimer,
			DisableLED:      s.Config.DisableLED,
		},
		Hardware: HardwareJSON{
			InterlockEngaged: snap.Hardware.InterlockEngaged,
			InterlockValid:   snap.Hardware.InterlockValid,
			FailsafeArmed:    snap.Hardware.FailsafeArmed,
			WatchdogSeconds:  int64(snap.Hardware.WatchdogTimeout / time.Second),
		},
		KeepAliveStrikes: snap.KeepAliveStrikes,
		UptimeSeconds:    int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:        snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:        snap.Now.UTC().Format(time.RFC3339),
		MQTT:             MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Fingerprint: snap.Config.Fingerprint,
		},
	}
	if !s.Config.HideTimer {
		duration, remaining := s.Timers.LockDuration, s.Timers.LockRemaining
		inner.Timers.LockDuration = &duration
		inner.Timers.LockRemaining = &remaining
	}
	for i := range inner.Hardware.Channels {
		inner.Hardware.Channels[i] = snap.Hardware.Outputs&(1<<i) != 0
	}
	if snap.Hardware.FailsafeArmed {
		inner.Hardware.FailsafeDeadline = snap.Hardware.FailsafeDeadline.UTC().Format(time.RFC3339)
	}
	if snap.LastFault != nil {
		inner.LastFault = &FaultJSON{Reason: snap.LastFault.Reason, State: snap.LastFault.State.String()}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
