// Package config loads lockbox settings: defaults, then the YAML settings
// file, then LOCKBOX_* environment overrides. Normalize clamps the result
// into safe ranges and reports what it changed; it never rejects a boot.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/gowebpki/jcs"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/lockbox/internal/session"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "LOCKBOX_"

// Strategy is the YAML/JSON spelling of session.DeterrentStrategy.
type Strategy string

const (
	StrategyFixed  Strategy = "fixed"
	StrategyRandom Strategy = "random"
)

// UnmarshalText accepts only the known strategies.
func (s *Strategy) UnmarshalText(b []byte) error {
	v := Strategy(strings.ToLower(strings.TrimSpace(string(b))))
	switch v {
	case StrategyFixed, StrategyRandom:
		*s = v
		return nil
	}
	return fmt.Errorf("unknown strategy %q", string(b))
}

func (s Strategy) deterrent() session.DeterrentStrategy {
	if s == StrategyRandom {
		return session.DeterrentRandom
	}
	return session.DeterrentFixed
}

func strategyOf(d session.DeterrentStrategy) Strategy {
	if d == session.DeterrentRandom {
		return StrategyRandom
	}
	return StrategyFixed
}

// Presets are the session generator ranges, in seconds.
type Presets struct {
	ShortMin  uint32 `yaml:"short_min" json:"short_min" env:"SHORT_MIN"`
	ShortMax  uint32 `yaml:"short_max" json:"short_max" env:"SHORT_MAX"`
	MediumMin uint32 `yaml:"medium_min" json:"medium_min" env:"MEDIUM_MIN"`
	MediumMax uint32 `yaml:"medium_max" json:"medium_max" env:"MEDIUM_MAX"`
	LongMin   uint32 `yaml:"long_min" json:"long_min" env:"LONG_MIN"`
	LongMax   uint32 `yaml:"long_max" json:"long_max" env:"LONG_MAX"`

	MinSession uint32 `yaml:"min_session" json:"min_session" env:"MIN_SESSION"`
	MaxSession uint32 `yaml:"max_session" json:"max_session" env:"MAX_SESSION"`
}

// Deterrents configure the consequences of an early abort.
type Deterrents struct {
	EnableStreaks bool `yaml:"enable_streaks" json:"enable_streaks" env:"ENABLE_STREAKS"`

	EnableRewardCode      bool     `yaml:"enable_reward_code" json:"enable_reward_code" env:"ENABLE_REWARD_CODE"`
	RewardPenaltyStrategy Strategy `yaml:"reward_penalty_strategy" json:"reward_penalty_strategy" env:"REWARD_PENALTY_STRATEGY"`
	RewardPenaltyMin      uint32   `yaml:"reward_penalty_min" json:"reward_penalty_min" env:"REWARD_PENALTY_MIN"`
	RewardPenaltyMax      uint32   `yaml:"reward_penalty_max" json:"reward_penalty_max" env:"REWARD_PENALTY_MAX"`
	RewardPenalty         uint32   `yaml:"reward_penalty" json:"reward_penalty" env:"REWARD_PENALTY"`

	EnablePayback   bool     `yaml:"enable_payback" json:"enable_payback" env:"ENABLE_PAYBACK"`
	PaybackStrategy Strategy `yaml:"payback_strategy" json:"payback_strategy" env:"PAYBACK_STRATEGY"`
	PaybackMin      uint32   `yaml:"payback_min" json:"payback_min" env:"PAYBACK_MIN"`
	PaybackMax      uint32   `yaml:"payback_max" json:"payback_max" env:"PAYBACK_MAX"`
	Payback         uint32   `yaml:"payback" json:"payback" env:"PAYBACK"`

	EnableTimeModification bool   `yaml:"enable_time_modification" json:"enable_time_modification" env:"ENABLE_TIME_MODIFICATION"`
	TimeModificationStep   uint32 `yaml:"time_modification_step" json:"time_modification_step" env:"TIME_MODIFICATION_STEP"`
}

// System holds device timing parameters.
type System struct {
	LongPressMs         uint32 `yaml:"long_press_ms" json:"long_press_ms" env:"LONG_PRESS_MS"`
	InterlockOnDelay    uint32 `yaml:"interlock_on_delay" json:"interlock_on_delay" env:"INTERLOCK_ON_DELAY"`
	TestMode            uint32 `yaml:"test_mode" json:"test_mode" env:"TEST_MODE"`
	FailsafeMaxLock     uint32 `yaml:"failsafe_max_lock" json:"failsafe_max_lock" env:"FAILSAFE_MAX_LOCK"`
	KeepAliveIntervalMs uint32 `yaml:"keepalive_interval_ms" json:"keepalive_interval_ms" env:"KEEPALIVE_INTERVAL_MS"`
	KeepAliveMaxStrikes uint32 `yaml:"keepalive_max_strikes" json:"keepalive_max_strikes" env:"KEEPALIVE_MAX_STRIKES"`
	ArmedTimeout        uint32 `yaml:"armed_timeout" json:"armed_timeout" env:"ARMED_TIMEOUT"`
	BrokerMaxRetries    uint32 `yaml:"broker_max_retries" json:"broker_max_retries" env:"BROKER_MAX_RETRIES"`
}

// Device is where the controller finds its hardware and peers.
type Device struct {
	Broker       string `yaml:"broker" json:"broker" env:"BROKER"`
	HTTPAddr     string `yaml:"http_addr" json:"http_addr" env:"HTTP_ADDR"`
	DataDir      string `yaml:"data_dir" json:"data_dir" env:"DATA_DIR"`
	ButtonPin    int    `yaml:"button_pin" json:"button_pin" env:"BUTTON_PIN"`
	InterlockPin int    `yaml:"interlock_pin" json:"interlock_pin" env:"INTERLOCK_PIN"`
	ChannelPins  []int  `yaml:"channel_pins" json:"channel_pins" env:"CHANNEL_PINS" envSeparator:","`
}

// Settings is the whole settings file.
type Settings struct {
	Presets    Presets    `yaml:"presets" json:"presets" envPrefix:"PRESETS_"`
	Deterrents Deterrents `yaml:"deterrents" json:"deterrents" envPrefix:"DETERRENTS_"`
	System     System     `yaml:"system" json:"system" envPrefix:"SYSTEM_"`
	Device     Device     `yaml:"device" json:"device" envPrefix:"DEVICE_"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Presets: Presets{
			ShortMin:   900,
			ShortMax:   1800,
			MediumMin:  1800,
			MediumMax:  3600,
			LongMin:    3600,
			LongMax:    10800,
			MinSession: 900,
			MaxSession: 10800,
		},
		Deterrents: Deterrents{
			EnableStreaks:          true,
			EnableRewardCode:       true,
			RewardPenaltyStrategy:  StrategyFixed,
			RewardPenaltyMin:       900,
			RewardPenaltyMax:       3600,
			RewardPenalty:          900,
			EnablePayback:          true,
			PaybackStrategy:        StrategyFixed,
			PaybackMin:             300,
			PaybackMax:             2700,
			Payback:                900,
			EnableTimeModification: false,
			TimeModificationStep:   300,
		},
		System: System{
			LongPressMs:         5000,
			InterlockOnDelay:    10,
			TestMode:            240,
			FailsafeMaxLock:     14400,
			KeepAliveIntervalMs: 10000,
			KeepAliveMaxStrikes: 4,
			ArmedTimeout:        1800,
			BrokerMaxRetries:    5,
		},
		Device: Device{
			Broker:       "tcp://192.168.1.200:1883",
			HTTPAddr:     ":80",
			DataDir:      "/var/lib/lockbox",
			ButtonPin:    17,
			InterlockPin: 27,
			ChannelPins:  []int{5, 6, 13, 19},
		},
	}
}

// LoadFrom reads settings from the given YAML file on top of the defaults.
// If the file does not exist, it returns the defaults with no error.
func LoadFrom(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// ApplyEnv overlays LOCKBOX_* environment variables. Unset variables leave
// the current value alone.
func (s *Settings) ApplyEnv() error {
	if err := env.ParseWithOptions(s, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load is LoadFrom followed by ApplyEnv.
func Load(path string) (Settings, error) {
	s, err := LoadFrom(path)
	if err != nil {
		return s, err
	}
	if err := s.ApplyEnv(); err != nil {
		return s, err
	}
	return s, nil
}

// SaveTo writes the settings as YAML, replacing the file atomically.
func (s Settings) SaveTo(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Fingerprint is the SHA-256 of the JCS-canonical JSON of the settings, so
// two processes can tell whether they run with the same effective values.
func (s Settings) Fingerprint() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode settings: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize settings: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// SessionPresets converts to the engine's presets.
func (s Settings) SessionPresets() session.SessionPresets {
	p := s.Presets
	return session.SessionPresets{
		ShortMin:           p.ShortMin,
		ShortMax:           p.ShortMax,
		MediumMin:          p.MediumMin,
		MediumMax:          p.MediumMax,
		LongMin:            p.LongMin,
		LongMax:            p.LongMax,
		MinSessionDuration: p.MinSession,
		MaxSessionDuration: p.MaxSession,
	}
}

// DeterrentConfig converts to the engine's deterrents.
func (s Settings) DeterrentConfig() session.DeterrentConfig {
	d := s.Deterrents
	return session.DeterrentConfig{
		EnableStreaks:          d.EnableStreaks,
		EnableRewardCode:       d.EnableRewardCode,
		RewardPenaltyStrategy:  d.RewardPenaltyStrategy.deterrent(),
		RewardPenaltyMin:       d.RewardPenaltyMin,
		RewardPenaltyMax:       d.RewardPenaltyMax,
		RewardPenalty:          d.RewardPenalty,
		EnablePaybackTime:      d.EnablePayback,
		PaybackTimeStrategy:    d.PaybackStrategy.deterrent(),
		PaybackTimeMin:         d.PaybackMin,
		PaybackTimeMax:         d.PaybackMax,
		PaybackTime:            d.Payback,
		EnableTimeModification: d.EnableTimeModification,
		TimeModificationStep:   d.TimeModificationStep,
	}
}

// SystemDefaults converts to the engine's device timing parameters.
func (s Settings) SystemDefaults() session.SystemDefaults {
	y := s.System
	return session.SystemDefaults{
		LongPressMs:            y.LongPressMs,
		ExtButtonSignalSeconds: y.InterlockOnDelay,
		TestModeSeconds:        y.TestMode,
		FailsafeMaxLockSeconds: y.FailsafeMaxLock,
		KeepAliveIntervalMs:    y.KeepAliveIntervalMs,
		KeepAliveMaxStrikes:    y.KeepAliveMaxStrikes,
		ArmedTimeoutSeconds:    y.ArmedTimeout,
		BrokerMaxRetries:       y.BrokerMaxRetries,
	}
}

// SetSession replaces the presets and deterrents from engine values.
func (s *Settings) SetSession(p session.SessionPresets, d session.DeterrentConfig) {
	s.Presets = Presets{
		ShortMin:   p.ShortMin,
		ShortMax:   p.ShortMax,
		MediumMin:  p.MediumMin,
		MediumMax:  p.MediumMax,
		LongMin:    p.LongMin,
		LongMax:    p.LongMax,
		MinSession: p.MinSessionDuration,
		MaxSession: p.MaxSessionDuration,
	}
	s.Deterrents = Deterrents{
		EnableStreaks:          d.EnableStreaks,
		EnableRewardCode:       d.EnableRewardCode,
		RewardPenaltyStrategy:  strategyOf(d.RewardPenaltyStrategy),
		RewardPenaltyMin:       d.RewardPenaltyMin,
		RewardPenaltyMax:       d.RewardPenaltyMax,
		RewardPenalty:          d.RewardPenalty,
		EnablePayback:          d.EnablePaybackTime,
		PaybackStrategy:        strategyOf(d.PaybackTimeStrategy),
		PaybackMin:             d.PaybackTimeMin,
		PaybackMax:             d.PaybackTimeMax,
		Payback:                d.PaybackTime,
		EnableTimeModification: d.EnableTimeModification,
		TimeModificationStep:   d.TimeModificationStep,
	}
}

// File is the settings file in use by a running controller. It is safe for
// concurrent use.
type File struct {
	path string

	mu sync.Mutex
	s  Settings
}

// NewFile wraps settings loaded from path.
func NewFile(path string, s Settings) *File {
	return &File{path: path, s: s}
}

// Current returns the settings in effect.
func (f *File) Current() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

// Save writes s to the file, makes it current and returns its fingerprint.
func (f *File) Save(s Settings) (string, error) {
	fp, err := s.Fingerprint()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := s.SaveTo(f.path); err != nil {
		return "", err
	}
	f.s = s
	return fp, nil
}
