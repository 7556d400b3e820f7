// Package config loads command-line, environment and file configuration for
// both binaries. Precedence is flag, then environment, then config file,
// then default.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults
const (
	DefaultSpeedKmh     = 10.0
	DefaultCadenceRPM   = 85
	DefaultLocalName    = "Footpod"
	DefaultTickInterval = time.Second
	DefaultScanTimeout  = 10 * time.Second
	DefaultLogMaxSizeMB = 10
	DefaultLogBackups   = 3
	DefaultLogMaxAge    = 28
)

// Environment variable prefixes
const (
	PeripheralEnvPrefix = "FOOTPOD"
	CentralEnvPrefix    = "TREADMILL"
)

// DefaultNameKeywords mirror the treadmill client's name filter
var DefaultNameKeywords = []string{"nordictrack", "nordic", "ifit", "treadmill", "ftms"}

// Log configures the optional rotating log file
type Log struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	// MaxAgeDays removes rotated files older than this; 0 keeps them
	MaxAgeDays int
}

// Peripheral configures the footpod binary
type Peripheral struct {
	SpeedKmh     float64
	CadenceRPM   uint8
	LocalName    string
	TickInterval time.Duration
	Log          Log
}

// Central configures the treadmill reader binary
type Central struct {
	Address      string
	ScanTimeout  time.Duration
	NameKeywords []string
	TUI          bool
	Log          Log
}

// LoadPeripheral parses args (without the program name) into a Peripheral
func LoadPeripheral(args []string) (*Peripheral, error) {
	fs := pflag.NewFlagSet("footpod", pflag.ContinueOnError)
	fs.Float64("speed-kmh", DefaultSpeedKmh, "Simulated running speed in km/h")
	fs.Int("cadence", DefaultCadenceRPM, "Simulated cadence in steps per minute (0-255)")
	fs.String("local-name", DefaultLocalName, "Advertised device name")
	fs.Duration("tick-interval", DefaultTickInterval, "Interval between measurement notifications")
	addCommonFlags(fs)

	v, err := load(fs, args, PeripheralEnvPrefix)
	if err != nil {
		return nil, err
	}

	speed := v.GetFloat64("speed-kmh")
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed < 0 {
		return nil, fmt.Errorf("speed-kmh must be a non-negative number, got %v", speed)
	}
	cadence := v.GetInt("cadence")
	if cadence < 0 || cadence > math.MaxUint8 {
		return nil, fmt.Errorf("cadence must be between 0 and %d, got %d", math.MaxUint8, cadence)
	}
	tick := v.GetDuration("tick-interval")
	if tick <= 0 {
		return nil, fmt.Errorf("tick-interval must be positive, got %v", tick)
	}
	name := strings.TrimSpace(v.GetString("local-name"))
	if name == "" {
		return nil, fmt.Errorf("local-name cannot be empty")
	}

	return &Peripheral{
		SpeedKmh:     speed,
		CadenceRPM:   uint8(cadence),
		LocalName:    name,
		TickInterval: tick,
		Log:          logConfig(v),
	}, nil
}

// LoadCentral parses args (without the program name) into a Central
func LoadCentral(args []string) (*Central, error) {
	fs := pflag.NewFlagSet("treadmill_reader", pflag.ContinueOnError)
	fs.String("address", "", "Treadmill address; when empty the first device matching name-keywords is used")
	fs.Duration("scan-timeout", DefaultScanTimeout, "How long to scan for the treadmill")
	fs.StringSlice("name-keywords", DefaultNameKeywords, "Case-insensitive name fragments that identify a treadmill")
	fs.Bool("tui", false, "Show readings in a terminal dashboard")
	addCommonFlags(fs)

	v, err := load(fs, args, CentralEnvPrefix)
	if err != nil {
		return nil, err
	}

	timeout := v.GetDuration("scan-timeout")
	if timeout <= 0 {
		return nil, fmt.Errorf("scan-timeout must be positive, got %v", timeout)
	}
	keywords := splitList(v.GetStringSlice("name-keywords"))
	address := strings.TrimSpace(v.GetString("address"))
	if address == "" && len(keywords) == 0 {
		return nil, fmt.Errorf("either address or name-keywords must be set")
	}

	return &Central{
		Address:      address,
		ScanTimeout:  timeout,
		NameKeywords: keywords,
		TUI:          v.GetBool("tui"),
		Log:          logConfig(v),
	}, nil
}

func addCommonFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Configuration file (yaml, json or toml)")
	fs.String("log-file", "", "Also write logs to this file, rotated by size")
	fs.Int("log-max-size-mb", DefaultLogMaxSizeMB, "Rotate the log file after this many megabytes")
	fs.Int("log-max-backups", DefaultLogBackups, "Number of rotated log files to keep")
	fs.Int("log-max-age-days", DefaultLogMaxAge, "Remove rotated log files older than this many days, 0 to keep them")
}

func load(fs *pflag.FlagSet, args []string, envPrefix string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return v, nil
}

func logConfig(v *viper.Viper) Log {
	return Log{
		File:       v.GetString("log-file"),
		MaxSizeMB:  v.GetInt("log-max-size-mb"),
		MaxBackups: v.GetInt("log-max-backups"),
		MaxAgeDays: v.GetInt("log-max-age-days"),
	}
}

// splitList flattens comma separated entries, which is how list values
// arrive from the environment, and drops empty items
func splitList(values []string) []string {
	var result []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}
