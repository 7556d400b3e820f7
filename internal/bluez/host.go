// Package bluez serves a peripheral attribute tree and advertisement through
// the BlueZ D-Bus API (org.bluez.GattManager1 / org.bluez.LEAdvertisingManager1).
package bluez

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/gatt"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/peripheral"
)

// BlueZ D-Bus names
const (
	BusName                 = "org.bluez"
	GattManagerIface        = "org.bluez.GattManager1"
	AdvertisingManagerIface = "org.bluez.LEAdvertisingManager1"
	GattServiceIface        = "org.bluez.GattService1"
	GattCharacteristicIface = "org.bluez.GattCharacteristic1"
	GattDescriptorIface     = "org.bluez.GattDescriptor1"
	AdvertisementIface      = "org.bluez.LEAdvertisement1"
	ObjectManagerIface      = "org.freedesktop.DBus.ObjectManager"
	PropertiesIface         = "org.freedesktop.DBus.Properties"
	propertiesChangedSignal = PropertiesIface + ".PropertiesChanged"
	characteristicValueProp = "Value"
)

// BlueZ error names returned to remote callers
const (
	errNotSupported     = "org.bluez.Error.NotSupported"
	errInvalidArguments = "org.bluez.Error.InvalidArguments"
	errFailed           = "org.bluez.Error.Failed"
	errNotPermitted     = "org.bluez.Error.NotPermitted"
)

// ErrAdapterNotFound is returned when no adapter exposes GattManager1
var ErrAdapterNotFound = errors.New("BLE adapter not found")

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

type exportedObject struct {
	path  dbus.ObjectPath
	iface string
}

// Host implements peripheral.Host on a D-Bus connection to BlueZ
type Host struct {
	conn        *dbus.Conn
	adapterPath dbus.ObjectPath
	logger      *log.Logger

	mu       sync.RWMutex
	root     dbus.ObjectPath
	objects  managedObjects
	advProps map[string]map[string]dbus.Variant
	advPath  dbus.ObjectPath
	handler  peripheral.Handler
	exported []exportedObject
}

// Verify Host implements peripheral.Host
var _ peripheral.Host = (*Host)(nil)

// NewHost wraps an existing connection and adapter
func NewHost(conn *dbus.Conn, adapterPath dbus.ObjectPath, logger *log.Logger) *Host {
	if logger == nil {
		panic("Host: logger cannot be nil")
	}
	return &Host{
		conn:        conn,
		adapterPath: adapterPath,
		logger:      logger,
		objects:     make(managedObjects),
	}
}

// Connect opens the system bus and selects the first GATT-capable adapter
func Connect(logger *log.Logger) (*Host, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	adapterPath, err := FindAdapter(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	logger.Printf("Host: Using adapter %s", adapterPath)
	return NewHost(conn, adapterPath, logger), nil
}

// FindAdapter returns the first BlueZ object, in path order, that exposes GattManager1
func FindAdapter(conn *dbus.Conn) (dbus.ObjectPath, error) {
	var objects managedObjects
	err := conn.Object(BusName, "/").Call(ObjectManagerIface+".GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return "", fmt.Errorf("failed to list BlueZ objects: %w", err)
	}
	path, ok := adapterFrom(objects)
	if !ok {
		return "", ErrAdapterNotFound
	}
	return path, nil
}

func adapterFrom(objects managedObjects) (dbus.ObjectPath, bool) {
	paths := make([]string, 0, len(objects))
	for p := range objects {
		paths = append(paths, string(p))
	}
	sort.Strings(paths)
	for _, p := range paths {
		if _, ok := objects[dbus.ObjectPath(p)][GattManagerIface]; ok {
			return dbus.ObjectPath(p), true
		}
	}
	return "", false
}

// RegisterAttributeTree exports every object and asks BlueZ to register the
// application rooted at root. BlueZ calls back GetManagedObjects during
// registration, so no lock is held across the call.
func (h *Host) RegisterAttributeTree(root string, objects []gatt.ManagedObject, handler peripheral.Handler) error {
	if handler == nil {
		panic("Host: handler cannot be nil")
	}
	rootPath := dbus.ObjectPath(root)
	if !rootPath.IsValid() {
		return &peripheral.RegistrationError{Target: "GATT application", Err: fmt.Errorf("invalid object path %q", root)}
	}

	converted, err := toManagedObjects(objects)
	if err != nil {
		return &peripheral.RegistrationError{Target: "GATT application", Err: err}
	}

	h.mu.Lock()
	h.root = rootPath
	h.objects = converted
	h.handler = handler
	h.mu.Unlock()

	if err := h.export(&objectManager{host: h}, rootPath, ObjectManagerIface); err != nil {
		return &peripheral.RegistrationError{Target: "GATT application", Err: err}
	}
	for _, obj := range objects {
		path := dbus.ObjectPath(obj.Path)
		iface := interfaceFor(obj.Kind)
		if err := h.export(&properties{host: h, path: path}, path, PropertiesIface); err != nil {
			return &peripheral.RegistrationError{Target: "GATT application", Err: err}
		}
		var impl interface{}
		switch obj.Kind {
		case gatt.KindCharacteristic:
			impl = &characteristic{host: h, path: obj.Path}
		case gatt.KindDescriptor:
			impl = &descriptor{host: h, path: obj.Path}
		default:
			continue
		}
		if err := h.export(impl, path, iface); err != nil {
			return &peripheral.RegistrationError{Target: "GATT application", Err: err}
		}
	}

	call := h.conn.Object(BusName, h.adapterPath).Call(GattManagerIface+".RegisterApplication", 0, rootPath, map[string]dbus.Variant{})
	if call.Err != nil {
		return &peripheral.RegistrationError{Target: "GATT application", Err: call.Err}
	}
	h.logger.Printf("Host: GATT application registered at %s", rootPath)
	return nil
}

// RegisterAdvertisement exports adv and asks BlueZ to start advertising it
func (h *Host) RegisterAdvertisement(adv *peripheral.Advertisement) error {
	path := dbus.ObjectPath(adv.Path)
	if !path.IsValid() {
		return &peripheral.RegistrationError{Target: "advertisement", Err: fmt.Errorf("invalid object path %q", adv.Path)}
	}

	h.mu.Lock()
	h.advPath = path
	h.advProps = map[string]map[string]dbus.Variant{AdvertisementIface: toVariantMap(adv.Properties())}
	h.mu.Unlock()

	if err := h.export(&advertisementProperties{host: h}, path, PropertiesIface); err != nil {
		return &peripheral.RegistrationError{Target: "advertisement", Err: err}
	}
	if err := h.export(&advertisement{host: h}, path, AdvertisementIface); err != nil {
		return &peripheral.RegistrationError{Target: "advertisement", Err: err}
	}

	call := h.conn.Object(BusName, h.adapterPath).Call(AdvertisingManagerIface+".RegisterAdvertisement", 0, path, map[string]dbus.Variant{})
	if call.Err != nil {
		return &peripheral.RegistrationError{Target: "advertisement", Err: call.Err}
	}
	h.logger.Printf("Host: Advertisement registered at %s", path)
	return nil
}

// PushValueChanged emits PropertiesChanged with the new Value for path
func (h *Host) PushValueChanged(path string, value []byte) {
	changed := map[string]dbus.Variant{characteristicValueProp: dbus.MakeVariant(value)}
	err := h.conn.Emit(dbus.ObjectPath(path), propertiesChangedSignal, GattCharacteristicIface, changed, []string{})
	if err != nil {
		h.logger.Printf("Host: Failed to emit value change for %s: %v", path, err)
	}
}

// Close unregisters the advertisement and application, unexports every
// object and closes the bus connection
func (h *Host) Close() error {
	h.mu.Lock()
	advPath := h.advPath
	root := h.root
	exported := h.exported
	h.exported = nil
	h.mu.Unlock()

	var errs []error
	adapter := h.conn.Object(BusName, h.adapterPath)
	if advPath != "" {
		if call := adapter.Call(AdvertisingManagerIface+".UnregisterAdvertisement", 0, advPath); call.Err != nil {
			errs = append(errs, fmt.Errorf("unregister advertisement: %w", call.Err))
		}
	}
	if root != "" {
		if call := adapter.Call(GattManagerIface+".UnregisterApplication", 0, root); call.Err != nil {
			errs = append(errs, fmt.Errorf("unregister application: %w", call.Err))
		}
	}
	for _, obj := range exported {
		if err := h.conn.Export(nil, obj.path, obj.iface); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	h.logger.Printf("Host: Closed")
	return errors.Join(errs...)
}

func (h *Host) export(v interface{}, path dbus.ObjectPath, iface string) error {
	if err := h.conn.Export(v, path, iface); err != nil {
		return fmt.Errorf("export %s on %s: %w", iface, path, err)
	}
	h.mu.Lock()
	h.exported = append(h.exported, exportedObject{path: path, iface: iface})
	h.mu.Unlock()
	return nil
}

func (h *Host) currentHandler() peripheral.Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

func (h *Host) snapshotObjects() managedObjects {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(managedObjects, len(h.objects))
	for p, ifaces := range h.objects {
		out[p] = ifaces
	}
	return out
}

func (h *Host) propertiesOf(path dbus.ObjectPath, iface string) (map[string]dbus.Variant, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	props, ok := h.objects[path][iface]
	return props, ok
}

func (h *Host) advertisementPropertiesOf(iface string) (map[string]dbus.Variant, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	props, ok := h.advProps[iface]
	return props, ok
}

func interfaceFor(kind gatt.Kind) string {
	switch kind {
	case gatt.KindService:
		return GattServiceIface
	case gatt.KindCharacteristic:
		return GattCharacteristicIface
	case gatt.KindDescriptor:
		return GattDescriptorIface
	default:
		return ""
	}
}

func toManagedObjects(objects []gatt.ManagedObject) (managedObjects, error) {
	out := make(managedObjects, len(objects))
	for _, obj := range objects {
		path := dbus.ObjectPath(obj.Path)
		if !path.IsValid() {
			return nil, fmt.Errorf("invalid object path %q", obj.Path)
		}
		iface := interfaceFor(obj.Kind)
		if iface == "" {
			return nil, fmt.Errorf("no BlueZ interface for %s at %s", obj.Kind, obj.Path)
		}
		out[path] = map[string]map[string]dbus.Variant{iface: toVariantMap(obj.Properties)}
	}
	return out, nil
}

func toVariantMap(d *gatt.Dict) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, d.Len())
	d.Range(func(key string, value gatt.Value) bool {
		out[key] = toVariant(value)
		return true
	})
	return out
}

func toVariant(v gatt.Value) dbus.Variant {
	switch v.Kind() {
	case gatt.StringValue:
		s, _ := v.AsString()
		return dbus.MakeVariant(s)
	case gatt.BoolValue:
		b, _ := v.AsBool()
		return dbus.MakeVariant(b)
	case gatt.BytesValue:
		b, _ := v.AsBytes()
		return dbus.MakeVariant(b)
	case gatt.StringsValue:
		s, _ := v.AsStrings()
		return dbus.MakeVariant(s)
	case gatt.PathValue:
		s, _ := v.AsString()
		return dbus.MakeVariant(dbus.ObjectPath(s))
	case gatt.PathsValue:
		s, _ := v.AsStrings()
		paths := make([]dbus.ObjectPath, 0, len(s))
		for _, p := range s {
			paths = append(paths, dbus.ObjectPath(p))
		}
		return dbus.MakeVariant(paths)
	default:
		return dbus.MakeVariant("")
	}
}

func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, peripheral.ErrNotSupported):
		return dbus.NewError(errNotSupported, []interface{}{err.Error()})
	case errors.Is(err, peripheral.ErrUnknownAttribute):
		return dbus.NewError(errInvalidArguments, []interface{}{err.Error()})
	default:
		return dbus.NewError(errFailed, []interface{}{err.Error()})
	}
}
