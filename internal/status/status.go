// Package status provides a thread-safe status tracker for the lockbox
// controller. It is read by HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/lockbox/internal/session"
)

// Hardware is the device side of the status: inputs, outputs and the
// software safety timers.
type Hardware struct {
	InterlockEngaged bool
	InterlockValid   bool
	Outputs          uint8
	FailsafeArmed    bool
	FailsafeDeadline time.Time
	WatchdogTimeout  time.Duration
}

// Engine is the engine side of the status. Session must come from
// Engine.Snapshot so reward codes are already hidden where required.
type Engine struct {
	Session          session.Snapshot
	SessionID        string
	KeepAliveStrikes uint32
	LastFault        *session.Fault
}

// Config contains controller configuration for display.
type Config struct {
	TickMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	Fingerprint string
}

// Snapshot is a point-in-time view of controller state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Engine
	Hardware      Hardware
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the engine and hardware state.
// Called from runLoop on every tick.
func (t *Tracker) Update(e Engine, hw Hardware) {
	t.mu.Lock()
	t.snap.Engine = e
	t.snap.Hardware = hw
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetFingerprint records the fingerprint of the settings now in effect.
func (t *Tracker) SetFingerprint(fp string) {
	t.mu.Lock()
	t.snap.Config.Fingerprint = fp
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
