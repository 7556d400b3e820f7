package bt

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/bluetooth"
)

const treadmillDataUUID = "00002acd-0000-1000-8000-00805f9b34fb"

func testLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func TestScanEntry_DisplayName(t *testing.T) {
	assert.Equal(t, "Unknown", ScanEntry{}.DisplayName())
	assert.Equal(t, "NordicTrack T 6.5", ScanEntry{LocalName: "NordicTrack T 6.5"}.DisplayName())
}

func TestBTDeviceState_String(t *testing.T) {
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Connecting", Connecting.String())
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Unknown", BTDeviceState(42).String())
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("le-connection-abort-by-local")
	connErr := &ConnectError{Address: "AA:BB:CC:DD:EE:FF", Err: cause}
	assert.True(t, errors.Is(connErr, cause))
	assert.Contains(t, connErr.Error(), "AA:BB:CC:DD:EE:FF")

	subErr := &SubscribeError{CharacteristicUUID: treadmillDataUUID, Err: ErrNotConnected}
	assert.True(t, errors.Is(subErr, ErrNotConnected))
	assert.Contains(t, subErr.Error(), treadmillDataUUID)
}

func TestDevice_OperationsRequireConnection(t *testing.T) {
	d := newBtDeviceImpl(testLogger(), bluetooth.Address{})
	assert.False(t, d.IsConnected())
	assert.Equal(t, Disconnected, d.GetState())

	err := d.EnableNotifications("", treadmillDataUUID, func([]byte) {})
	var subErr *SubscribeError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, treadmillDataUUID, subErr.CharacteristicUUID)
	assert.True(t, errors.Is(err, ErrNotConnected))

	err = d.DisableNotifications("", treadmillDataUUID)
	assert.True(t, errors.Is(err, ErrNotConnected))

	_, err = d.DiscoverAll()
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestDevice_InvalidUUID(t *testing.T) {
	d := newBtDeviceImpl(testLogger(), bluetooth.Address{})
	err := d.EnableNotifications("", "not-a-uuid", func([]byte) {})
	var subErr *SubscribeError
	assert.True(t, errors.As(err, &subErr))
}

func TestDevice_ScanEntryDefaults(t *testing.T) {
	d := newBtDeviceImpl(testLogger(), bluetooth.Address{})
	assert.Equal(t, "Unknown", d.GetLocalName())
	assert.Equal(t, d.GetAddressString(), d.scanEntry().Address)
}

func TestManager_ConnectUnknownDevice(t *testing.T) {
	m := NewBTManager(nil, testLogger(), 0)
	assert.Equal(t, DefaultScanTimeout, m.scanTimeout)

	_, err := m.Connect(context.Background(), "AA:BB:CC:DD:EE:FF")
	var connErr *ConnectError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", connErr.Address)
}

func TestManager_ConnectCancelled(t *testing.T) {
	m := NewBTManager(nil, testLogger(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Connect(ctx, "AA:BB:CC:DD:EE:FF")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestManager_SeenSinceAndLookup(t *testing.T) {
	m := NewBTManager(nil, testLogger(), time.Second)
	start := time.Now()

	stale := newBtDeviceImpl(testLogger(), bluetooth.Address{})
	stale.entry = ScanEntry{Address: "11:11:11:11:11:11", LastSeen: start.Add(-time.Minute)}
	b := newBtDeviceImpl(testLogger(), bluetooth.Address{})
	b.entry = ScanEntry{Address: "BB:00:00:00:00:00", LocalName: "Treadmill", LastSeen: start.Add(time.Second)}
	a := newBtDeviceImpl(testLogger(), bluetooth.Address{})
	a.entry = ScanEntry{Address: "AA:00:00:00:00:00", LastSeen: start}

	m.devicesByAddress["11:11:11:11:11:11"] = stale
	m.devicesByAddress["BB:00:00:00:00:00"] = b
	m.devicesByAddress["AA:00:00:00:00:00"] = a

	seen := m.seenSince(start)
	require.Len(t, seen, 2)
	assert.Equal(t, "AA:00:00:00:00:00", seen[0].Address)
	assert.Equal(t, "BB:00:00:00:00:00", seen[1].Address)

	found, ok := m.lookup("bb:00:00:00:00:00")
	require.True(t, ok)
	assert.Same(t, b, found)

	assert.Empty(t, m.GetConnectedDevices())
}
