package bluez

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/gatt"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/peripheral"
)

type fakeHandler struct {
	reads        []string
	subscribed   []string
	unsubscribed []string
	readValue    []byte
	readErr      error
	writeErr     error
}

func (f *fakeHandler) OnRead(path string) ([]byte, error) {
	f.reads = append(f.reads, path)
	return f.readValue, f.readErr
}

func (f *fakeHandler) OnWrite(path string, value []byte) error { return f.writeErr }
func (f *fakeHandler) OnSubscribe(path string)                 { f.subscribed = append(f.subscribed, path) }
func (f *fakeHandler) OnUnsubscribe(path string)               { f.unsubscribed = append(f.unsubscribed, path) }

// newOfflineHost builds a Host without a bus connection; only the
// dispatch and conversion paths are usable
func newOfflineHost(t *testing.T, handler peripheral.Handler) *Host {
	t.Helper()
	h := NewHost(nil, "/org/bluez/hci0", log.New(&bytes.Buffer{}, "", 0))
	h.handler = handler
	return h
}

func sampleTree(t *testing.T) *gatt.Node {
	t.Helper()
	app := gatt.NewApplication("/org/bluez/footpod")
	svc := gatt.NewService(uuid.MustParse("00001814-0000-1000-8000-00805f9b34fb"), true)
	require.NoError(t, gatt.AddChild(app, svc))
	chr := gatt.NewCharacteristic(uuid.MustParse("00002a53-0000-1000-8000-00805f9b34fb"), gatt.FlagNotify)
	require.NoError(t, gatt.AddChild(svc, chr))
	desc := gatt.NewDescriptor(uuid.MustParse("00002901-0000-1000-8000-00805f9b34fb"), gatt.FlagRead)
	require.NoError(t, gatt.AddChild(chr, desc))
	return app
}

func TestToVariant(t *testing.T) {
	tests := []struct {
		value     gatt.Value
		signature string
		expected  interface{}
	}{
		{gatt.String("Footpod"), "s", "Footpod"},
		{gatt.Bool(true), "b", true},
		{gatt.Bytes([]byte{0x07, 0x00}), "ay", []byte{0x07, 0x00}},
		{gatt.Strings([]string{"read", "notify"}), "as", []string{"read", "notify"}},
		{gatt.Path("/org/bluez/footpod/service0"), "o", dbus.ObjectPath("/org/bluez/footpod/service0")},
		{gatt.Paths([]string{"/a/char0"}), "ao", []dbus.ObjectPath{"/a/char0"}},
	}

	for _, tt := range tests {
		t.Run(tt.value.Kind().String(), func(t *testing.T) {
			v := toVariant(tt.value)
			assert.Equal(t, tt.signature, v.Signature().String())
			assert.Equal(t, tt.expected, v.Value())
		})
	}
}

func TestToVariant_EmptyPaths(t *testing.T) {
	v := toVariant(gatt.Paths(nil))
	assert.Equal(t, "ao", v.Signature().String())
	assert.Empty(t, v.Value())
}

func TestToManagedObjects_WrapsInterfaces(t *testing.T) {
	objects, err := toManagedObjects(gatt.CollectManagedObjects(sampleTree(t)))
	require.NoError(t, err)
	require.Len(t, objects, 3)

	svc := objects["/org/bluez/footpod/service0"]
	require.Contains(t, svc, GattServiceIface)
	assert.Equal(t, true, svc[GattServiceIface][gatt.PropPrimary].Value())
	assert.Equal(t, []dbus.ObjectPath{"/org/bluez/footpod/service0/char0"},
		svc[GattServiceIface][gatt.PropCharacteristics].Value())

	chr := objects["/org/bluez/footpod/service0/char0"]
	require.Contains(t, chr, GattCharacteristicIface)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/footpod/service0"), chr[GattCharacteristicIface][gatt.PropService].Value())
	assert.Equal(t, []string{"notify"}, chr[GattCharacteristicIface][gatt.PropFlags].Value())

	desc := objects["/org/bluez/footpod/service0/char0/desc0"]
	require.Contains(t, desc, GattDescriptorIface)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/footpod/service0/char0"), desc[GattDescriptorIface][gatt.PropCharacteristic].Value())
}

func TestToManagedObjects_RejectsBadPath(t *testing.T) {
	_, err := toManagedObjects([]gatt.ManagedObject{{Path: "not a path", Kind: gatt.KindService, Properties: gatt.NewDict()}})
	assert.Error(t, err)
}

func TestAdapterFrom(t *testing.T) {
	objects := managedObjects{
		"/org/bluez":      {"org.bluez.AgentManager1": {}},
		"/org/bluez/hci1": {GattManagerIface: {}, "org.bluez.Adapter1": {}},
		"/org/bluez/hci0": {GattManagerIface: {}, "org.bluez.Adapter1": {}},
	}
	path, ok := adapterFrom(objects)
	require.True(t, ok)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0"), path)

	_, ok = adapterFrom(managedObjects{"/org/bluez": {"org.bluez.AgentManager1": {}}})
	assert.False(t, ok)
}

func TestToDBusError(t *testing.T) {
	assert.Nil(t, toDBusError(nil))
	assert.Equal(t, errNotSupported, toDBusError(fmt.Errorf("%w: write", peripheral.ErrNotSupported)).Name)
	assert.Equal(t, errInvalidArguments, toDBusError(peripheral.ErrUnknownAttribute).Name)
	assert.Equal(t, errFailed, toDBusError(errors.New("boom")).Name)
}

func TestCharacteristic_DispatchesToHandler(t *testing.T) {
	handler := &fakeHandler{readValue: []byte{0x07, 0x00}}
	h := newOfflineHost(t, handler)
	chr := &characteristic{host: h, path: "/app/service0/char0"}

	value, dErr := chr.ReadValue(nil)
	require.Nil(t, dErr)
	assert.Equal(t, []byte{0x07, 0x00}, value)
	assert.Equal(t, []string{"/app/service0/char0"}, handler.reads)

	assert.Nil(t, chr.StartNotify())
	assert.Nil(t, chr.StopNotify())
	assert.Equal(t, []string{"/app/service0/char0"}, handler.subscribed)
	assert.Equal(t, []string{"/app/service0/char0"}, handler.unsubscribed)
}

func TestCharacteristic_ErrorsMapToBlueZNames(t *testing.T) {
	handler := &fakeHandler{
		readErr:  peripheral.ErrNotSupported,
		writeErr: peripheral.ErrNotSupported,
	}
	h := newOfflineHost(t, handler)
	chr := &characteristic{host: h, path: "/app/service0/char1"}

	_, dErr := chr.ReadValue(nil)
	require.NotNil(t, dErr)
	assert.Equal(t, errNotSupported, dErr.Name)

	dErr = chr.WriteValue([]byte{1}, nil)
	require.NotNil(t, dErr)
	assert.Equal(t, errNotSupported, dErr.Name)
}

func TestProperties_GetAllAndGet(t *testing.T) {
	h := newOfflineHost(t, &fakeHandler{})
	objects, err := toManagedObjects(gatt.CollectManagedObjects(sampleTree(t)))
	require.NoError(t, err)
	h.objects = objects

	props := &properties{host: h, path: "/org/bluez/footpod/service0/char0"}
	all, dErr := props.GetAll(GattCharacteristicIface)
	require.Nil(t, dErr)
	assert.Contains(t, all, gatt.PropUUID)

	v, dErr := props.Get(GattCharacteristicIface, gatt.PropUUID)
	require.Nil(t, dErr)
	assert.Equal(t, "00002a53-0000-1000-8000-00805f9b34fb", v.Value())

	_, dErr = props.GetAll(GattServiceIface)
	assert.NotNil(t, dErr)
	_, dErr = props.Get(GattCharacteristicIface, "Nope")
	assert.NotNil(t, dErr)
	assert.NotNil(t, props.Set(GattCharacteristicIface, gatt.PropUUID, dbus.MakeVariant("x")))
}

func TestObjectManager_ReturnsSnapshot(t *testing.T) {
	h := newOfflineHost(t, &fakeHandler{})
	objects, err := toManagedObjects(gatt.CollectManagedObjects(sampleTree(t)))
	require.NoError(t, err)
	h.objects = objects

	om := &objectManager{host: h}
	got, dErr := om.GetManagedObjects()
	require.Nil(t, dErr)
	assert.Len(t, got, 3)
}

func TestAdvertisementProperties(t *testing.T) {
	h := newOfflineHost(t, &fakeHandler{})
	adv := &peripheral.Advertisement{Type: peripheral.AdvertisementPeripheral, LocalName: "Footpod"}
	h.advProps = map[string]map[string]dbus.Variant{AdvertisementIface: toVariantMap(adv.Properties())}

	props := &advertisementProperties{host: h}
	all, dErr := props.GetAll(AdvertisementIface)
	require.Nil(t, dErr)
	assert.Equal(t, "peripheral", all[peripheral.AdvPropType].Value())
	assert.Equal(t, "Footpod", all[peripheral.AdvPropLocalName].Value())
	assert.NotContains(t, all, peripheral.AdvPropServiceUUIDs)
}
