package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestNew_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(Options{Console: &buf})
	logger.Printf("Service: hello")

	assert.Contains(t, buf.String(), "Service: hello")
	assert.NoError(t, closer.Close())
}

func TestNew_FileAndConsole(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "footpod.log")

	logger, closer := New(Options{Console: &buf, File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 7})
	rotated, ok := closer.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, 7, rotated.MaxAge)
	assert.Equal(t, 1, rotated.MaxBackups)

	logger.Printf("Client: reading")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Client: reading")
	assert.Contains(t, buf.String(), "Client: reading")
}
