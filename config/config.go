package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// DefaultLogLevel defines a default log level as INFO.
	DefaultLogLevel = "info"

	// WakeBackendAuto picks boottime where the platform supports it and
	// wallclock everywhere else.
	WakeBackendAuto = "auto"
	// WakeBackendBoottime uses Linux timerfds on the boottime clocks.
	WakeBackendBoottime = "boottime"
	// WakeBackendWallclock re-checks the wall clock periodically.
	WakeBackendWallclock = "wallclock"
	// WakeBackendMonotonic uses plain runtime timers.
	WakeBackendMonotonic = "monotonic"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultAlarmDir  = ".alarm"
	defaultConfigDir = "config"

	defaultConfigFileName = "config.toml"
	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
)

// Config defines the top level configuration for the alarm tooling.
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Timer           *TimerConfig           `mapstructure:"timer"`
	Wake            *WakeConfig            `mapstructure:"wake"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Timer:           DefaultTimerConfig(),
		Wake:            DefaultWakeConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Timer:           TestTimerConfig(),
		Wake:            TestWakeConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Timer.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [timer] section: %w", err)
	}
	if err := cfg.Wake.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [wake] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`
}

// DefaultBaseConfig returns a default base configuration
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
	}
}

// TestBaseConfig returns a base configuration for testing
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.LogLevel = "debug"
	return cfg
}

// ConfigFile returns the full path to the config.toml file
func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log format (must be 'plain' or 'json')")
	}
	return nil
}

//-----------------------------------------------------------------------------
// TimerConfig

// TimerConfig defines the configuration of the coalescing sleep timer.
type TimerConfig struct {
	// Extra time the local fallback waits on top of the requested duration
	// before releasing a cycle whose wake never arrived. It keeps a wake
	// service that fires on time from racing the fallback and being reported
	// as degraded. Zero means the fallback fires exactly at the requested
	// duration.
	FallbackGrace time.Duration `mapstructure:"fallback-grace"`

	// When set, a caller that joined a cycle armed for a shorter duration
	// sleeps again for the remainder of its own duration instead of
	// returning with the cycle.
	StrictDurations bool `mapstructure:"strict-durations"`
}

// DefaultTimerConfig returns a default configuration for the sleep timer.
func DefaultTimerConfig() *TimerConfig {
	return &TimerConfig{
		FallbackGrace:   time.Second,
		StrictDurations: false,
	}
}

// TestTimerConfig returns a configuration for testing the sleep timer.
func TestTimerConfig() *TimerConfig {
	return DefaultTimerConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *TimerConfig) ValidateBasic() error {
	if cfg.FallbackGrace < 0 {
		return errors.New("fallback-grace can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// WakeConfig

// WakeConfig defines the configuration of the wake service.
type WakeConfig struct {
	// Backend used to time wake alarms:
	// * auto      - boottime where available, wallclock otherwise
	// * boottime  - Linux timerfd on CLOCK_BOOTTIME_ALARM / CLOCK_BOOTTIME
	// * wallclock - runtime timer re-checked against the wall clock
	// * monotonic - runtime timer only; does not account for suspend
	Backend string `mapstructure:"backend"`

	// Action name alarm handles are named after ("<action>.<id>").
	Action string `mapstructure:"action"`

	// Maximum number of outstanding registrations. 0 means unbounded.
	MaxRegistrations int `mapstructure:"max-registrations"`

	// How often the wallclock backend re-checks the wall clock.
	WallclockCheckInterval time.Duration `mapstructure:"wallclock-check-interval"`
}

// DefaultWakeConfig returns a default configuration for the wake service.
func DefaultWakeConfig() *WakeConfig {
	return &WakeConfig{
		Backend:                WakeBackendAuto,
		Action:                 "alarm.wake",
		MaxRegistrations:       64,
		WallclockCheckInterval: 10 * time.Second,
	}
}

// TestWakeConfig returns a configuration for testing the wake service.
func TestWakeConfig() *WakeConfig {
	cfg := DefaultWakeConfig()
	cfg.Backend = WakeBackendMonotonic
	cfg.WallclockCheckInterval = 100 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *WakeConfig) ValidateBasic() error {
	switch cfg.Backend {
	case WakeBackendAuto, WakeBackendBoottime, WakeBackendWallclock, WakeBackendMonotonic:
	default:
		return fmt.Errorf("unknown backend %q (must be auto, boottime, wallclock or monotonic)", cfg.Backend)
	}
	if cfg.Action == "" {
		return errors.New("action can't be empty")
	}
	if cfg.MaxRegistrations < 0 {
		return errors.New("max-registrations can't be negative")
	}
	if cfg.WallclockCheckInterval <= 0 {
		return errors.New("wallclock-check-interval must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus-listen-addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26670",
		Namespace:            "alarm",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus-listen-addr can't be empty when prometheus is enabled")
	}
	if cfg.Namespace == "" {
		return errors.New("namespace can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
