package bt

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

type BTDeviceState int

const (
	Disconnected BTDeviceState = iota // 0
	Connecting                        // 1
	Connected                         // 2
)

func (s BTDeviceState) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	default:
		return "Unknown"
	}
}

// ScanEntry is what an advertisement told us about a device
type ScanEntry struct {
	Address      string
	LocalName    string
	RSSI         int16
	ServiceUUIDs []string
	LastSeen     time.Time
}

// DisplayName returns the advertised name, or "Unknown" when there is none
func (e ScanEntry) DisplayName() string {
	if e.LocalName == "" {
		return "Unknown"
	}
	return e.LocalName
}

// DiscoveredService lists the characteristic UUIDs found under one service
type DiscoveredService struct {
	UUID            string
	Characteristics []string
}

// BTDevice is a connected (or once connected) remote peripheral
type BTDevice interface {
	GetAddressString() string
	GetLocalName() string
	GetScanRSSI() int16
	IsConnected() bool
	GetState() BTDeviceState
	// EnableNotifications subscribes to characteristicUuid. An empty
	// serviceUuid searches every discovered service.
	EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error
	DisableNotifications(serviceUuid string, characteristicUuid string) error
	// DiscoverAll discovers every service and characteristic and returns them
	// ordered by UUID
	DiscoverAll() ([]DiscoveredService, error)
}

type btDeviceImpl struct {
	address         bluetooth.Address
	entry           ScanEntry
	connectedDevice *bluetooth.Device // nil if not connected
	mu              sync.RWMutex
	bleMu           sync.Mutex // serializes GATT operations
	logger          *log.Logger
	state           BTDeviceState

	serviceByUuid         map[string]*bluetooth.DeviceService
	characteristicByUuid  map[string]*bluetooth.DeviceCharacteristic
	serviceCharsFound     map[string]bool
	allServicesDiscovered bool
}

func newBtDeviceImpl(logger *log.Logger, address bluetooth.Address) *btDeviceImpl {
	if logger == nil {
		panic("logger must be non nil")
	}
	return &btDeviceImpl{
		logger:               logger,
		address:              address,
		entry:                ScanEntry{Address: address.String()},
		state:                Disconnected,
		serviceByUuid:        make(map[string]*bluetooth.DeviceService),
		characteristicByUuid: make(map[string]*bluetooth.DeviceCharacteristic),
		serviceCharsFound:    make(map[string]bool),
	}
}

func (b *btDeviceImpl) getAddress() bluetooth.Address {
	return b.address
}

func (b *btDeviceImpl) GetAddressString() string {
	return b.address.String()
}

func (b *btDeviceImpl) GetLocalName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entry.DisplayName()
}

func (b *btDeviceImpl) GetScanRSSI() int16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entry.RSSI
}

func (b *btDeviceImpl) scanEntry() ScanEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entry
}

func (b *btDeviceImpl) updateFromScan(result bluetooth.ScanResult, now time.Time) ScanEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name := result.LocalName(); name != "" {
		b.entry.LocalName = name
	}
	b.entry.RSSI = result.RSSI
	b.entry.LastSeen = now
	if uuids := result.ServiceUUIDs(); len(uuids) > 0 {
		b.entry.ServiceUUIDs = make([]string, 0, len(uuids))
		for _, u := range uuids {
			b.entry.ServiceUUIDs = append(b.entry.ServiceUUIDs, u.String())
		}
	}
	return b.entry
}

func (b *btDeviceImpl) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice != nil
}

func (b *btDeviceImpl) GetState() BTDeviceState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *btDeviceImpl) setState(state BTDeviceState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state
}

// setConnectedDevice records the link. Clearing it also drops the discovery
// cache since handles are not valid across connections.
func (b *btDeviceImpl) setConnectedDevice(device *bluetooth.Device) {
	b.mu.Lock()
	b.connectedDevice = device
	b.mu.Unlock()

	if device == nil {
		b.bleMu.Lock()
		b.serviceByUuid = make(map[string]*bluetooth.DeviceService)
		b.characteristicByUuid = make(map[string]*bluetooth.DeviceCharacteristic)
		b.serviceCharsFound = make(map[string]bool)
		b.allServicesDiscovered = false
		b.bleMu.Unlock()
	}
}

func (b *btDeviceImpl) getConnectedDevice() *bluetooth.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice
}

func (b *btDeviceImpl) EnableNotifications(
	serviceUuidStr string,
	characteristicUuidStr string,
	callbackFunc func(buf []byte)) error {

	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	b.logger.Printf("BTDevice: EnableNotifications called for service=%q char=%s", serviceUuidStr, characteristicUuidStr)

	characteristic, err := b.findCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return &SubscribeError{CharacteristicUUID: characteristicUuidStr, Err: err}
	}

	if err := characteristic.EnableNotifications(callbackFunc); err != nil {
		return &SubscribeError{CharacteristicUUID: characteristicUuidStr, Err: err}
	}

	b.logger.Printf("BTDevice: Notifications enabled for %s", characteristicUuidStr)
	return nil
}

func (b *btDeviceImpl) DisableNotifications(serviceUuidStr string, characteristicUuidStr string) error {
	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	characteristic, err := b.findCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return err
	}

	// a nil callback disables notifications
	if err := characteristic.EnableNotifications(nil); err != nil {
		return fmt.Errorf("failed to disable notifications: %w", err)
	}
	b.logger.Printf("BTDevice: Notifications disabled for %s", characteristicUuidStr)
	return nil
}

func (b *btDeviceImpl) DiscoverAll() ([]DiscoveredService, error) {
	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	if err := b.discoverServices(); err != nil {
		return nil, err
	}
	result := make([]DiscoveredService, 0, len(b.serviceByUuid))
	for _, svcUuid := range sortedKeys(b.serviceByUuid) {
		if err := b.discoverCharacteristics(svcUuid); err != nil {
			return nil, err
		}
		result = append(result, DiscoveredService{UUID: svcUuid, Characteristics: b.characteristicsOf(svcUuid)})
	}
	return result, nil
}

// findCharacteristic must be called with bleMu held
func (b *btDeviceImpl) findCharacteristic(serviceUuidStr, characteristicUuidStr string) (*bluetooth.DeviceCharacteristic, error) {
	charUuid, err := bluetooth.ParseUUID(characteristicUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", characteristicUuidStr, err)
	}

	if err := b.discoverServices(); err != nil {
		return nil, err
	}

	services := sortedKeys(b.serviceByUuid)
	if serviceUuidStr != "" {
		svcUuid, err := bluetooth.ParseUUID(serviceUuidStr)
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUuidStr, err)
		}
		if _, ok := b.serviceByUuid[svcUuid.String()]; !ok {
			return nil, fmt.Errorf("service %s %w", svcUuid.String(), ErrUUIDNotFound)
		}
		services = []string{svcUuid.String()}
	}

	for _, svc := range services {
		if err := b.discoverCharacteristics(svc); err != nil {
			return nil, err
		}
		if c, ok := b.characteristicByUuid[characteristicKey(svc, charUuid.String())]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("characteristic %s %w", charUuid.String(), ErrUUIDNotFound)
}

// discoverServices discovers every service once per connection. Discovering
// single services repeatedly interrupts services already in use.
func (b *btDeviceImpl) discoverServices() error {
	if b.allServicesDiscovered {
		return nil
	}
	connectedDevice := b.getConnectedDevice()
	if connectedDevice == nil {
		return ErrNotConnected
	}

	b.logger.Printf("BTDevice: Discovering all services for %s", b.GetAddressString())
	deviceServices, err := connectedDevice.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("error discovering services: %w", err)
	}
	for i := range deviceServices {
		svc := &deviceServices[i]
		b.serviceByUuid[svc.UUID().String()] = svc
	}
	b.allServicesDiscovered = true
	return nil
}

func (b *btDeviceImpl) discoverCharacteristics(serviceUuidStr string) error {
	if b.serviceCharsFound[serviceUuidStr] {
		return nil
	}
	service, ok := b.serviceByUuid[serviceUuidStr]
	if !ok {
		return fmt.Errorf("service %s %w", serviceUuidStr, ErrUUIDNotFound)
	}

	chars, err := service.DiscoverCharacteristics(nil)
	if err != nil {
		return fmt.Errorf("could not discover characteristics for service %v: %w", serviceUuidStr, err)
	}
	for i := range chars {
		c := &chars[i]
		b.characteristicByUuid[characteristicKey(serviceUuidStr, c.UUID().String())] = c
	}
	b.serviceCharsFound[serviceUuidStr] = true
	return nil
}

func (b *btDeviceImpl) characteristicsOf(serviceUuidStr string) []string {
	prefix := serviceUuidStr + "_"
	var result []string
	for key := range b.characteristicByUuid {
		if strings.HasPrefix(key, prefix) {
			result = append(result, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(result)
	return result
}

func characteristicKey(serviceUuidStr, charUuidStr string) string {
	return fmt.Sprintf("%s_%s", serviceUuidStr, charUuidStr)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
