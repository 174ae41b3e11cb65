// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/lockbox/internal/session"
)

// TopicState is the retained topic carrying the latest session state.
const TopicState = "lockbox/session/state"

// TopicEvents is the MQTT topic for session transition events.
const TopicEvents = "lockbox/session/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "lockbox/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishSession sends a session transition event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishSession(event SessionEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports on the MQTT connection.
type ConnectionStatus interface {
	IsConnected() bool

	// ReconnectAttempts is the number of reconnect attempts since the last
	// successful connection.
	ReconnectAttempts() int
}

// Event names.
const (
	EventStateChange = "STATE_CHANGE"
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventOffline     = "OFFLINE"
)

// SessionEvent is a session state transition.
type SessionEvent struct {
	Timestamp time.Time
	SessionID string // empty outside a session
	From      session.DeviceState
	To        session.DeviceState
	Outcome   session.Outcome // set when a session ends
	Timers    session.SessionTimers
	Stats     session.SessionStats
	HideTimer bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string        // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string        // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Config     *SystemConfig // startup only
	RawPayload []byte        // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool          // Whether the message should be retained by the broker
}

// SystemConfig is the effective configuration reported at startup.
type SystemConfig struct {
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Settings    string `json:"settings_fingerprint"`
}

// SessionPayload represents the MQTT message payload for session events.
type SessionPayload struct {
	Session SessionPayloadInner `json:"session"`
}

// SessionPayloadInner contains the session event details. Reward codes are
// never published.
type SessionPayloadInner struct {
	Timestamp        string  `json:"timestamp"`
	ID               string  `json:"id,omitempty"`
	Event            string  `json:"event"`
	From             string  `json:"from"`
	To               string  `json:"to"`
	Outcome          string  `json:"outcome,omitempty"`
	LockRemaining    *uint32 `json:"lock_remaining,omitempty"`
	PenaltyRemaining uint32  `json:"penalty_remaining"`
	Streaks          uint32  `json:"streaks"`
	Completed        uint32  `json:"completed"`
	Aborted          uint32  `json:"aborted"`
	PaybackSeconds   uint32  `json:"payback_s"`
}

// FormatSessionPayload creates the JSON payload for a session event.
// The lock countdown is left out when the session hides its timer.
func FormatSessionPayload(event SessionEvent) ([]byte, error) {
	inner := SessionPayloadInner{
		Timestamp:        event.Timestamp.UTC().Format(time.RFC3339),
		ID:               event.SessionID,
		Event:            EventStateChange,
		From:             event.From.String(),
		To:               event.To.String(),
		Outcome:          string(event.Outcome),
		PenaltyRemaining: event.Timers.PenaltyRemaining,
		Streaks:          event.Stats.Streaks,
		Completed:        event.Stats.Completed,
		Aborted:          event.Stats.Aborted,
		PaybackSeconds:   event.Stats.PaybackAccumulated,
	}
	if !event.HideTimer {
		remaining := event.Timers.LockRemaining
		inner.LockRemaining = &remaining
	}
	return json.Marshal(SessionPayload{Session: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, SHUTDOWN) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string        `json:"timestamp"`
	Event     string        `json:"event"`
	Reason    string        `json:"reason,omitempty"`
	Config    *SystemConfig `json:"config,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Config:    event.Config,
		},
	}
	return json.Marshal(payload)
}
