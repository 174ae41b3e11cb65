package config

import (
	"fmt"

	"github.com/sweeney/lockbox/internal/session"
)

// Floor and ceiling pairs, seconds unless named otherwise.
const (
	MinSessionFloor = 60

	PenaltyFloor   = 300
	PenaltyCeiling = 4 * 3600

	PaybackFloor   = 300
	PaybackCeiling = 3600

	StepFloor   = 60
	StepCeiling = 3600

	LongPressFloorMs   = 1000
	LongPressCeilingMs = 10000

	InterlockOnDelayFloor   = 1
	InterlockOnDelayCeiling = 60

	TestModeFloor   = 30
	TestModeCeiling = 3600

	FailsafeFloor = 3600

	KeepAliveFloorMs   = 1000
	KeepAliveCeilingMs = 60000

	StrikesFloor   = 1
	StrikesCeiling = 20

	ArmedTimeoutFloor   = 60
	ArmedTimeoutCeiling = 7200

	RetriesFloor   = 1
	RetriesCeiling = 100
)

type corrections []string

func (c *corrections) addf(format string, args ...any) {
	*c = append(*c, fmt.Sprintf(format, args...))
}

func (c *corrections) clamp(name string, v *uint32, lo, hi uint32) {
	if lo > hi {
		lo = hi
	}
	switch {
	case *v < lo:
		c.addf("%s: %d raised to %d", name, *v, lo)
		*v = lo
	case *v > hi:
		c.addf("%s: %d lowered to %d", name, *v, hi)
		*v = hi
	}
}

// order swaps an inverted min/max pair.
func (c *corrections) order(name string, min, max *uint32) {
	if *min > *max {
		c.addf("%s: min %d and max %d swapped", name, *min, *max)
		*min, *max = *max, *min
	}
}

// deterrent clamps one fixed/random deterrent. A random range that collapses
// to a single value becomes fixed at that value.
func (c *corrections) deterrent(name string, strategy *Strategy, fixed, min, max *uint32, lo, hi uint32) {
	if *strategy != StrategyRandom {
		*strategy = StrategyFixed
	}
	c.clamp(name, fixed, lo, hi)
	c.clamp(name+"_min", min, lo, hi)
	c.clamp(name+"_max", max, lo, hi)
	c.order(name, min, max)
	if *strategy == StrategyRandom && *min == *max {
		c.addf("%s: random range %d..%d collapsed, using fixed %d", name, *min, *max, *min)
		*strategy = StrategyFixed
		*fixed = *min
	}
}

// Normalize clamps every value into its allowed range and returns a
// description of each change. The result always passes
// session.CheckSettings.
func (s *Settings) Normalize() []string {
	var c corrections

	p := &s.Presets
	c.clamp("presets.min_session", &p.MinSession, MinSessionFloor, session.AbsoluteMaxSession)
	c.clamp("presets.max_session", &p.MaxSession, MinSessionFloor, session.AbsoluteMaxSession)
	if p.MinSession >= p.MaxSession {
		def := Default().Presets
		c.addf("presets: min_session %d not below max_session %d, reset to %d..%d",
			p.MinSession, p.MaxSession, def.MinSession, def.MaxSession)
		p.MinSession, p.MaxSession = def.MinSession, def.MaxSession
	}
	for _, r := range []struct {
		name     string
		min, max *uint32
	}{
		{"presets.short", &p.ShortMin, &p.ShortMax},
		{"presets.medium", &p.MediumMin, &p.MediumMax},
		{"presets.long", &p.LongMin, &p.LongMax},
	} {
		c.clamp(r.name+"_min", r.min, p.MinSession, p.MaxSession)
		c.clamp(r.name+"_max", r.max, p.MinSession, p.MaxSession)
		c.order(r.name, r.min, r.max)
	}

	d := &s.Deterrents
	c.deterrent("deterrents.reward_penalty", &d.RewardPenaltyStrategy,
		&d.RewardPenalty, &d.RewardPenaltyMin, &d.RewardPenaltyMax,
		PenaltyFloor, min(PenaltyCeiling, p.MaxSession))
	c.deterrent("deterrents.payback", &d.PaybackStrategy,
		&d.Payback, &d.PaybackMin, &d.PaybackMax,
		PaybackFloor, min(PaybackCeiling, p.MaxSession))
	c.clamp("deterrents.time_modification_step", &d.TimeModificationStep, StepFloor, StepCeiling)

	y := &s.System
	c.clamp("system.long_press_ms", &y.LongPressMs, LongPressFloorMs, LongPressCeilingMs)
	c.clamp("system.interlock_on_delay", &y.InterlockOnDelay, InterlockOnDelayFloor, InterlockOnDelayCeiling)
	c.clamp("system.test_mode", &y.TestMode, TestModeFloor, TestModeCeiling)
	if y.FailsafeMaxLock != 0 {
		c.clamp("system.failsafe_max_lock", &y.FailsafeMaxLock, FailsafeFloor, session.AbsoluteMaxSession)
	}
	c.clamp("system.keepalive_interval_ms", &y.KeepAliveIntervalMs, KeepAliveFloorMs, KeepAliveCeilingMs)
	c.clamp("system.keepalive_max_strikes", &y.KeepAliveMaxStrikes, StrikesFloor, StrikesCeiling)
	c.clamp("system.armed_timeout", &y.ArmedTimeout, ArmedTimeoutFloor, ArmedTimeoutCeiling)
	c.clamp("system.broker_max_retries", &y.BrokerMaxRetries, RetriesFloor, RetriesCeiling)

	dev := &s.Device
	if len(dev.ChannelPins) > session.MaxChannels {
		c.addf("device.channel_pins: %d pins, only the first %d used", len(dev.ChannelPins), session.MaxChannels)
		dev.ChannelPins = dev.ChannelPins[:session.MaxChannels]
	}
	if len(dev.ChannelPins) == 0 {
		c.addf("device.channel_pins: empty, using defaults")
		dev.ChannelPins = Default().Device.ChannelPins
	}

	return c
}
