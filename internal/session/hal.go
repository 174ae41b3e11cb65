package session

// Random is a bounded-range random integer source. Both bounds are inclusive.
type Random interface {
	Random(min, max uint32) uint32
}

// HAL is everything the engine needs from hardware, storage and the
// surrounding process. Input methods are polled from Tick; effect methods are
// never called while the engine holds its state lock.
type HAL interface {
	Random

	// IsChannelEnabled reports whether channel i is physically installed.
	IsChannelEnabled(i int) bool
	// SetSafetyMask energises exactly the channels in mask (bit i = channel i).
	// The implementation filters against installed channels.
	SetSafetyMask(mask uint8) error

	// CheckTriggerAction, CheckAbortAction and CheckShortPressAction report
	// whether the edge happened since the last call, clearing it (consume).
	CheckTriggerAction() bool
	CheckAbortAction() bool
	CheckShortPressAction() bool

	// IsSafetyInterlockEngaged is the raw interlock signal.
	IsSafetyInterlockEngaged() bool
	// IsSafetyInterlockValid is true when the interlock is engaged or the
	// signal was lost less than the grace period ago.
	IsSafetyInterlockValid() bool

	// IsNetworkProvisioningRequested reports a dead control plane network.
	IsNetworkProvisioningRequested() bool
	// EnterNetworkProvisioning hands control to provisioning. It does not
	// return to the engine.
	EnterNetworkProvisioning()

	SetWatchdogTimeout(seconds uint32)
	ArmFailsafeTimer(seconds uint32)
	DisarmFailsafeTimer()

	// SaveState persists the snapshot.
	SaveState(snap Snapshot) error

	Log(message string)

	// Millis is a monotonic millisecond clock.
	Millis() uint64
}
