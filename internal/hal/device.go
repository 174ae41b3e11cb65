// Package hal binds the session engine to the real world: GPIO inputs and
// outputs, SQLite persistence and MQTT events. Device is the production
// session.HAL.
package hal

import (
	"context"
	"log"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/sweeney/lockbox/internal/gpio"
	"github.com/sweeney/lockbox/internal/input"
	"github.com/sweeney/lockbox/internal/mqtt"
	"github.com/sweeney/lockbox/internal/session"
	"github.com/sweeney/lockbox/internal/store"
)

// Exit codes used when the device hands control back to the supervisor.
const (
	ExitProvisioning = 3
	ExitWatchdog     = 4
)

// DefaultSampleInterval is how often the front panel is read.
const DefaultSampleInterval = 10 * time.Millisecond

// saveTimeout bounds one persistence write.
const saveTimeout = 2 * time.Second

// Store is the persistence the device needs.
type Store interface {
	SaveSnapshot(ctx context.Context, snap session.Snapshot) error
	BeginSession(ctx context.Context, rec store.SessionRecord) error
	EndSession(ctx context.Context, id string, outcome session.Outcome, endedAt time.Time, penalty, payback uint32) error
}

// Deps are the adapters a Device is built from. Conn may be nil when no
// broker is configured.
type Deps struct {
	Reader    gpio.Reader
	Driver    gpio.Driver
	Store     Store
	Publisher mqtt.Publisher
	Conn      mqtt.ConnectionStatus
}

// Config holds the device parameters.
type Config struct {
	Panel          input.PanelConfig
	SampleInterval time.Duration
	// BrokerMaxRetries is the number of failed reconnects after which
	// network provisioning is requested. Zero disables the request.
	BrokerMaxRetries int

	// Now and Exit default to time.Now and os.Exit.
	Now  func() time.Time
	Exit func(code int)
}

// Device implements session.HAL.
type Device struct {
	reader gpio.Reader
	driver gpio.Driver
	store  Store
	pub    mqtt.Publisher
	conn   mqtt.ConnectionStatus
	panel  *input.Panel
	logs   *logRing

	sampleInterval time.Duration
	maxRetries     int
	now            func() time.Time
	exit           func(int)
	start          time.Time

	mu              sync.Mutex
	mask            uint8
	readErr         bool
	failsafe        *time.Timer
	failsafeUntil   time.Time
	failsafeTripped bool
	watchdog        time.Duration
	lastFeed        time.Time
	watchdogTripped bool
	lastState       session.DeviceState
	sessionID       string
	events          []mqtt.SessionEvent
}

// New creates a device. Outputs are driven low immediately.
func New(deps Deps, cfg Config) *Device {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	d := &Device{
		reader:         deps.Reader,
		driver:         deps.Driver,
		store:          deps.Store,
		pub:            deps.Publisher,
		conn:           deps.Conn,
		panel:          input.NewPanel(cfg.Panel),
		logs:           newLogRing(LogBufferSize),
		sampleInterval: cfg.SampleInterval,
		maxRetries:     cfg.BrokerMaxRetries,
		now:            cfg.Now,
		exit:           cfg.Exit,
	}
	d.start = d.now()
	d.lastFeed = d.start
	if err := d.driver.Set(0); err != nil {
		log.Printf("hal: failed to release outputs: %v", err)
	}
	return d
}

// Resume tells the device which state the engine was restored in so the
// first transition after boot is reported correctly.
func (d *Device) Resume(state session.DeviceState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastState = state
}

// Run samples the front panel and publishes queued events until ctx is done.
func (d *Device) Run(ctx context.Context) {
	ticker := time.NewTicker(d.sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.PublishPending()
			return
		case <-ticker.C:
			d.Sample()
			d.PublishPending()
		}
	}
}

// Sample reads the inputs once, feeds the panel and checks the watchdog.
// A read failure is treated as button released and interlock lost.
func (d *Device) Sample() {
	button, interlock, err := d.reader.Read()
	now := d.now()

	d.mu.Lock()
	if err != nil {
		if !d.readErr {
			log.Printf("hal: input read failed: %v", err)
		}
		d.readErr = true
		button, interlock = false, false
	} else if d.readErr {
		log.Printf("hal: input read recovered")
		d.readErr = false
	}
	d.mu.Unlock()

	d.panel.Process(input.Sample{Button: button, Interlock: interlock, Time: now})
	d.checkWatchdog(now)
}

// Feed resets the software watchdog. The tick loop calls it after every
// engine tick.
func (d *Device) Feed() {
	now := d.now()
	d.mu.Lock()
	d.lastFeed = now
	d.mu.Unlock()
}

func (d *Device) checkWatchdog(now time.Time) {
	d.mu.Lock()
	if d.watchdog == 0 || d.watchdogTripped || now.Sub(d.lastFeed) <= d.watchdog {
		d.mu.Unlock()
		return
	}
	d.watchdogTripped = true
	stalled := now.Sub(d.lastFeed)
	d.mu.Unlock()

	log.Printf("hal: watchdog expired (loop stalled for %s), releasing outputs", stalled.Round(time.Millisecond))
	d.release()
	d.exit(ExitWatchdog)
}

// release forces every output low.
func (d *Device) release() {
	d.mu.Lock()
	d.mask = 0
	d.mu.Unlock()
	if err := d.driver.Set(0); err != nil {
		log.Printf("hal: failed to release outputs: %v", err)
	}
}

// Random returns a uniform value in [min, max].
func (d *Device) Random(min, max uint32) uint32 {
	if min >= max {
		return min
	}
	return min + uint32(rand.Uint64N(uint64(max-min)+1))
}

func (d *Device) IsChannelEnabled(i int) bool {
	return d.driver.Installed(i)
}

// SetSafetyMask drives the outputs. After the failsafe has fired every
// output stays low until the failsafe is disarmed.
func (d *Device) SetSafetyMask(mask uint8) error {
	d.mu.Lock()
	if d.failsafeTripped {
		mask = 0
	}
	d.mask = mask
	d.mu.Unlock()

	return d.driver.Set(mask)
}

func (d *Device) CheckTriggerAction() bool    { return d.panel.TakeTrigger() }
func (d *Device) CheckAbortAction() bool      { return d.panel.TakeAbort() }
func (d *Device) CheckShortPressAction() bool { return d.panel.TakeShortPress() }

func (d *Device) IsSafetyInterlockEngaged() bool {
	return d.panel.InterlockEngaged()
}

func (d *Device) IsSafetyInterlockValid() bool {
	return d.panel.InterlockValid(d.now())
}

// IsNetworkProvisioningRequested reports whether the broker has been
// unreachable for more than the configured number of reconnects.
func (d *Device) IsNetworkProvisioningRequested() bool {
	if d.conn == nil || d.maxRetries <= 0 {
		return false
	}
	return d.conn.ReconnectAttempts() > d.maxRetries
}

// EnterNetworkProvisioning releases the outputs and exits so the supervisor
// can restore connectivity.
func (d *Device) EnterNetworkProvisioning() {
	log.Printf("hal: entering network provisioning")
	d.release()
	d.PublishPending()
	d.exit(ExitProvisioning)
}

func (d *Device) SetWatchdogTimeout(seconds uint32) {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watchdog = time.Duration(seconds) * time.Second
	d.lastFeed = now
}

// ArmFailsafeTimer (re)starts the failsafe. When it fires every output is
// released regardless of engine state.
func (d *Device) ArmFailsafeTimer(seconds uint32) {
	dur := time.Duration(seconds) * time.Second
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failsafe != nil {
		d.failsafe.Stop()
	}
	d.failsafeTripped = false
	d.failsafeUntil = d.now().Add(dur)
	d.failsafe = time.AfterFunc(dur, d.failsafeExpired)
}

func (d *Device) DisarmFailsafeTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failsafe != nil {
		d.failsafe.Stop()
		d.failsafe = nil
	}
	d.failsafeTripped = false
	d.failsafeUntil = time.Time{}
}

func (d *Device) failsafeExpired() {
	d.mu.Lock()
	d.failsafeTripped = true
	d.failsafe = nil
	d.mu.Unlock()

	d.Log("Failsafe timer expired, releasing all channels")
	d.release()
}

// SaveState persists the snapshot and records state transitions.
func (d *Device) SaveState(snap session.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	d.transition(ctx, snap)
	return d.store.SaveSnapshot(ctx, snap)
}

func (d *Device) Log(message string) {
	log.Printf("session: %s", message)
	d.logs.add(LogEntry{Time: d.now(), Message: message})
}

// Millis is milliseconds since the device was created.
func (d *Device) Millis() uint64 {
	return uint64(d.now().Sub(d.start).Milliseconds())
}

// Logs returns the in-memory log, oldest first.
func (d *Device) Logs() []LogEntry {
	return d.logs.entries()
}

// Outputs returns the last mask written to the channels.
func (d *Device) Outputs() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mask
}

// FailsafeDeadline returns when the failsafe fires, if armed.
func (d *Device) FailsafeDeadline() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failsafeUntil, d.failsafe != nil
}

// WatchdogTimeout returns the current watchdog timeout.
func (d *Device) WatchdogTimeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.watchdog
}

// SessionID returns the id of the session in progress, if any.
func (d *Device) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// Close stops the failsafe timer and releases the outputs.
func (d *Device) Close() error {
	d.DisarmFailsafeTimer()
	d.release()
	return d.driver.Close()
}
