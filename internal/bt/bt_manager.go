package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/events"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/go_func_utils"

	"tinygo.org/x/bluetooth"
)

// DefaultScanTimeout bounds a scan when no timeout is configured
const DefaultScanTimeout = 10 * time.Second

// ErrScanInProgress is returned when ScanFor is called while a scan runs
var ErrScanInProgress = errors.New("a scan is already running")

// BTManagerInterface is the central-role surface used by clients
type BTManagerInterface interface {
	Enable() error
	// ScanFor scans until match accepts a device or the scan timeout
	// elapses. It returns the matched entry (nil on timeout) and every
	// device seen during the scan.
	ScanFor(ctx context.Context, match func(ScanEntry) bool) (*ScanEntry, []ScanEntry, error)
	Connect(ctx context.Context, address string) (BTDevice, error)
	Disconnect(device BTDevice) error
	// ListenToDisconnects registers a channel receiving the address of each
	// device that drops its link. Returns a deregistration function.
	ListenToDisconnects(ch chan<- string) func()
	Shutdown()
}

// Verify BTManager implements BTManagerInterface
var _ BTManagerInterface = (*BTManager)(nil)

type BTManager struct {
	adapter          *bluetooth.Adapter
	devicesByAddress map[string]*btDeviceImpl
	mu               sync.RWMutex
	scanning         bool
	scanTimeout      time.Duration
	disconnectEvent  *events.ChannelEvent[string]
	wg               sync.WaitGroup
	logger           *log.Logger
}

func NewBTManager(adapter *bluetooth.Adapter, logger *log.Logger, scanTimeout time.Duration) *BTManager {
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		scanTimeout = DefaultScanTimeout
	}
	return &BTManager{
		adapter:          adapter,
		devicesByAddress: make(map[string]*btDeviceImpl),
		scanTimeout:      scanTimeout,
		disconnectEvent:  events.NewChannelEvent[string](false),
		logger:           logger,
	}
}

// getBTDeviceImpl returns the device for address, creating it on first sight
func (m *BTManager) getBTDeviceImpl(address bluetooth.Address) (*btDeviceImpl, bool) {
	addressStr := address.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.devicesByAddress[addressStr]
	if !ok {
		result = newBtDeviceImpl(m.logger, address)
		m.devicesByAddress[addressStr] = result
	}
	return result, !ok
}

func (m *BTManager) lookup(addressStr string) (*btDeviceImpl, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for addr, d := range m.devicesByAddress {
		if strings.EqualFold(addr, addressStr) {
			return d, true
		}
	}
	return nil, false
}

func (m *BTManager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addressStr := device.Address.String()
		d, _ := m.getBTDeviceImpl(device.Address)

		if connected {
			m.logger.Printf("BTManager: Device connected: %s", addressStr)
			d.setConnectedDevice(&device)
			d.setState(Connected)
			return
		}
		m.logger.Printf("BTManager: Device disconnected: %s", addressStr)
		d.setConnectedDevice(nil)
		d.setState(Disconnected)
		m.disconnectEvent.Notify(addressStr)
	})

	if err := m.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE stack: %w", err)
	}
	return nil
}

func (m *BTManager) ScanFor(ctx context.Context, match func(ScanEntry) bool) (*ScanEntry, []ScanEntry, error) {
	m.mu.Lock()
	if m.scanning {
		m.mu.Unlock()
		return nil, nil, ErrScanInProgress
	}
	m.scanning = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.scanning = false
		m.mu.Unlock()
	}()

	scanCtx, cancel := context.WithTimeout(ctx, m.scanTimeout)
	defer cancel()

	m.logger.Printf("BTManager: Scanning for up to %v", m.scanTimeout)
	started := time.Now()
	found := make(chan ScanEntry, 1)
	scanDone := make(chan error, 1)

	go_func_utils.SafeGo(m.logger, &m.wg, "bt scan", func() {
		scanDone <- m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			d, isNew := m.getBTDeviceImpl(result.Address)
			entry := d.updateFromScan(result, time.Now())
			if isNew {
				m.logger.Printf("BTManager: Found device: %s (%s) [RSSI: %d]", entry.DisplayName(), entry.Address, entry.RSSI)
			}
			if match != nil && match(entry) {
				select {
				case found <- entry:
				default:
				}
			}
		})
	})

	var matched *ScanEntry
	var scanErr error
	select {
	case entry := <-found:
		matched = &entry
	case <-scanCtx.Done():
	case scanErr = <-scanDone:
		// scan ended on its own; nothing left to stop
		scanDone = nil
	}

	if scanDone != nil {
		if err := m.adapter.StopScan(); err != nil {
			m.logger.Printf("BTManager: Error stopping scan: %v", err)
		}
		if err := <-scanDone; err != nil {
			m.logger.Printf("BTManager: Scan ended with: %v", err)
		}
	}

	seen := m.seenSince(started)
	if scanErr != nil {
		return nil, seen, fmt.Errorf("scan failed: %w", scanErr)
	}
	if matched == nil && ctx.Err() != nil {
		return nil, seen, ctx.Err()
	}
	return matched, seen, nil
}

// seenSince returns every device advertised since t, ordered by address
func (m *BTManager) seenSince(t time.Time) []ScanEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ScanEntry, 0, len(m.devicesByAddress))
	for _, d := range m.devicesByAddress {
		entry := d.scanEntry()
		if !entry.LastSeen.Before(t) {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result
}

// Connect connects to a device seen during a previous scan
func (m *BTManager) Connect(ctx context.Context, address string) (BTDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ConnectError{Address: address, Err: err}
	}
	d, ok := m.lookup(address)
	if !ok {
		return nil, &ConnectError{Address: address, Err: errors.New("device was not seen in a scan")}
	}

	m.logger.Printf("BTManager: Connecting to %s (%s)", d.GetLocalName(), address)
	d.setState(Connecting)
	device, err := m.adapter.Connect(d.getAddress(), bluetooth.ConnectionParams{})
	if err != nil {
		d.setState(Disconnected)
		return nil, &ConnectError{Address: address, Err: err}
	}
	d.setConnectedDevice(&device)
	d.setState(Connected)
	m.logger.Printf("BTManager: Connected to %s", address)
	return d, nil
}

func (m *BTManager) Disconnect(device BTDevice) error {
	addressStr := device.GetAddressString()
	d, ok := m.lookup(addressStr)
	if !ok {
		return fmt.Errorf("could not find device %s", addressStr)
	}
	innerDevice := d.getConnectedDevice()
	if innerDevice == nil {
		return nil
	}
	m.logger.Printf("BTManager: Disconnecting from %s", addressStr)
	err := innerDevice.Disconnect()
	d.setConnectedDevice(nil)
	d.setState(Disconnected)
	if err != nil {
		return fmt.Errorf("failed to disconnect from %s: %w", addressStr, err)
	}
	return nil
}

func (m *BTManager) ListenToDisconnects(ch chan<- string) func() {
	return m.disconnectEvent.Listen(ch)
}

// GetConnectedDevices returns every device with a live link
func (m *BTManager) GetConnectedDevices() []BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]BTDevice, 0)
	for _, d := range m.devicesByAddress {
		if d.IsConnected() {
			result = append(result, d)
		}
	}
	return result
}

// Shutdown disconnects every device and waits for scan goroutines to finish
func (m *BTManager) Shutdown() {
	m.logger.Println("BTManager: Shutting down")
	for _, dev := range m.GetConnectedDevices() {
		if err := m.Disconnect(dev); err != nil {
			m.logger.Printf("BTManager: Error disconnecting from %v: %v", dev.GetAddressString(), err)
		}
	}
	m.wg.Wait()
	m.logger.Println("BTManager: Shutdown complete")
}
