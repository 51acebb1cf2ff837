package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"

	tmos "github.com/tendermint/alarm/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root and config directories if they don't exist.
func EnsureRoot(rootDir string) error {
	if err := tmos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		return err
	}
	return tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm)
}

// WriteConfigFile renders config using the template and writes it to
// the config.toml under rootDir.
// This function is called by cmd/alarm/commands/init.go
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(filepath.Join(rootDir, defaultConfigFilePath))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return tmos.WriteFile(path, buffer.Bytes(), 0644)
}

// WriteDefaultConfigFileIfNone writes the default config to rootDir unless a
// config file already exists there.
func WriteDefaultConfigFileIfNone(rootDir string) error {
	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if !tmos.FileExists(configFilePath) {
		if err := WriteConfigFile(rootDir, DefaultConfig()); err != nil {
			return fmt.Errorf("writing %s: %w", configFilePath, err)
		}
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# Output level for logging, including package level options
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

#######################################################################
###                 Sleep Timer Configuration Options               ###
#######################################################################
[timer]

# Extra time the local fallback waits on top of the requested duration
# before releasing sleepers whose wake alarm never arrived. With "0s" the
# fallback races an on-time wake and may release the sleepers first.
fallback-grace = "{{ .Timer.FallbackGrace }}"

# When true, a sleeper that joined an alarm armed for a shorter duration
# sleeps again for the remainder of its own duration.
strict-durations = {{ .Timer.StrictDurations }}

#######################################################################
###                 Wake Service Configuration Options              ###
#######################################################################
[wake]

# Backend used to time wake alarms:
#   - auto: boottime where available, wallclock otherwise
#   - boottime: Linux timerfd on CLOCK_BOOTTIME_ALARM (needs CAP_WAKE_ALARM
#     to wake a suspended host) or CLOCK_BOOTTIME
#   - wallclock: runtime timer re-checked against the wall clock
#   - monotonic: runtime timer only; does not account for suspend
backend = "{{ .Wake.Backend }}"

# Alarm handles are named "<action>.<id>"
action = "{{ .Wake.Action }}"

# Maximum number of outstanding wake alarms. 0 means unbounded.
max-registrations = {{ .Wake.MaxRegistrations }}

# How often the wallclock backend re-checks the wall clock
wallclock-check-interval = "{{ .Wake.WallclockCheckInterval }}"

#######################################################################
###       Instrumentation Configuration Options                     ###
#######################################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
# Check out the documentation for the list of available metrics.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus-listen-addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`
