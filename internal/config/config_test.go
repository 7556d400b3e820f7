package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPeripheral_Defaults(t *testing.T) {
	cfg, err := LoadPeripheral(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultSpeedKmh, cfg.SpeedKmh)
	assert.Equal(t, uint8(DefaultCadenceRPM), cfg.CadenceRPM)
	assert.Equal(t, DefaultLocalName, cfg.LocalName)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, Log{MaxSizeMB: DefaultLogMaxSizeMB, MaxBackups: DefaultLogBackups, MaxAgeDays: DefaultLogMaxAge}, cfg.Log)
}

func TestLoadPeripheral_Flags(t *testing.T) {
	cfg, err := LoadPeripheral([]string{"--speed-kmh=12.5", "--cadence", "170", "--local-name", "Pod", "--log-file", "/tmp/pod.log"})
	require.NoError(t, err)

	assert.Equal(t, 12.5, cfg.SpeedKmh)
	assert.Equal(t, uint8(170), cfg.CadenceRPM)
	assert.Equal(t, "Pod", cfg.LocalName)
	assert.Equal(t, "/tmp/pod.log", cfg.Log.File)
}

func TestLoadCentral_LogMaxAge(t *testing.T) {
	t.Setenv("TREADMILL_LOG_MAX_AGE_DAYS", "14")
	cfg, err := LoadCentral(nil)
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Log.MaxAgeDays)

	cfg, err = LoadCentral([]string{"--log-max-age-days", "0"})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Log.MaxAgeDays)
}

func TestLoadPeripheral_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "footpod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("speed-kmh: 8\ncadence: 160\nlocal-name: FromFile\n"), 0o600))
	t.Setenv("FOOTPOD_CADENCE", "150")

	cfg, err := LoadPeripheral([]string{"--config", path, "--local-name", "FromFlag"})
	require.NoError(t, err)

	assert.Equal(t, 8.0, cfg.SpeedKmh)
	assert.Equal(t, uint8(150), cfg.CadenceRPM)
	assert.Equal(t, "FromFlag", cfg.LocalName)
}

func TestLoadPeripheral_Invalid(t *testing.T) {
	tests := [][]string{
		{"--cadence", "256"},
		{"--cadence", "-1"},
		{"--speed-kmh", "-3"},
		{"--tick-interval", "0s"},
		{"--local-name", " "},
		{"--config", "/does/not/exist.yaml"},
		{"--unknown-flag"},
	}
	for _, args := range tests {
		_, err := LoadPeripheral(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestLoadPeripheral_Help(t *testing.T) {
	_, err := LoadPeripheral([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestLoadCentral_Defaults(t *testing.T) {
	cfg, err := LoadCentral(nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.Address)
	assert.Equal(t, DefaultScanTimeout, cfg.ScanTimeout)
	assert.Equal(t, DefaultNameKeywords, cfg.NameKeywords)
	assert.False(t, cfg.TUI)
}

func TestLoadCentral_Flags(t *testing.T) {
	cfg, err := LoadCentral([]string{"--address", "AA:BB:CC:DD:EE:FF", "--scan-timeout", "30s", "--name-keywords", "peloton,tread", "--tui"})
	require.NoError(t, err)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Address)
	assert.Equal(t, 30*time.Second, cfg.ScanTimeout)
	assert.Equal(t, []string{"peloton", "tread"}, cfg.NameKeywords)
	assert.True(t, cfg.TUI)
}

func TestLoadCentral_EnvKeywords(t *testing.T) {
	t.Setenv("TREADMILL_NAME_KEYWORDS", "sole, horizon")
	cfg, err := LoadCentral(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sole", "horizon"}, cfg.NameKeywords)
}

func TestLoadCentral_Invalid(t *testing.T) {
	_, err := LoadCentral([]string{"--scan-timeout", "-1s"})
	assert.Error(t, err)

	_, err = LoadCentral([]string{"--name-keywords", ""})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a,b", " c ", ""}))
	assert.Nil(t, splitList(nil))
}
