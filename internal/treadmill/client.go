// Package treadmill finds an FTMS treadmill, subscribes to its Treadmill
// Data characteristic and turns notifications into readings.
package treadmill

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/bt"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/events"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/ftms"
)

// DefaultNameKeywords select a treadmill by advertised name when no address is configured
var DefaultNameKeywords = []string{"nordictrack", "nordic", "ifit", "treadmill", "ftms"}

// ErrNoDevice is returned when a scan finds no matching treadmill
var ErrNoDevice = errors.New("no matching treadmill found")

// ErrLinkLost is returned by Run when the treadmill drops the connection
var ErrLinkLost = errors.New("treadmill disconnected")

// Config selects the treadmill. A non-empty Address takes precedence over
// NameKeywords.
type Config struct {
	Address      string
	NameKeywords []string
}

// Stats counts notifications seen during a session
type Stats struct {
	Packets  int
	TooShort int
}

// MatchesTreadmillName reports whether name contains any keyword, ignoring case
func MatchesTreadmillName(name string, keywords []string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// Client owns one session with a treadmill
type Client struct {
	cfg     Config
	central bt.BTManagerInterface
	logger  *log.Logger

	mu         sync.Mutex
	device     bt.BTDevice
	subscribed bool
	reading    ftms.TreadmillReading
	stats      Stats

	readingEvent *events.ChannelEvent[ftms.TreadmillReading]
}

func NewClient(cfg Config, central bt.BTManagerInterface, logger *log.Logger) *Client {
	if central == nil {
		panic("Client: central cannot be nil")
	}
	if logger == nil {
		panic("Client: logger cannot be nil")
	}
	if len(cfg.NameKeywords) == 0 {
		cfg.NameKeywords = DefaultNameKeywords
	}
	return &Client{
		cfg:          cfg,
		central:      central,
		logger:       logger,
		readingEvent: events.NewChannelEvent[ftms.TreadmillReading](true),
	}
}

// Matches reports whether a scanned device is the configured treadmill
func (c *Client) Matches(entry bt.ScanEntry) bool {
	if c.cfg.Address != "" {
		return strings.EqualFold(entry.Address, c.cfg.Address)
	}
	return MatchesTreadmillName(entry.LocalName, c.cfg.NameKeywords)
}

// SelectDevice scans until the first matching device is seen. When none is
// found every named device seen is logged for reference.
func (c *Client) SelectDevice(ctx context.Context) (bt.ScanEntry, error) {
	if c.cfg.Address != "" {
		c.logger.Printf("Client: Scanning for treadmill at %s", c.cfg.Address)
	} else {
		c.logger.Printf("Client: Scanning for treadmill matching %v", c.cfg.NameKeywords)
	}

	matched, seen, err := c.central.ScanFor(ctx, c.Matches)
	if err != nil {
		return bt.ScanEntry{}, err
	}
	if matched == nil {
		c.logger.Printf("Client: No treadmill found, %d devices seen", len(seen))
		for _, entry := range seen {
			if entry.LocalName != "" {
				c.logger.Printf("Client:   - %s (%s)", entry.LocalName, entry.Address)
			}
		}
		return bt.ScanEntry{}, ErrNoDevice
	}
	c.logger.Printf("Client: Found %s (%s), RSSI %d dBm", matched.DisplayName(), matched.Address, matched.RSSI)
	return *matched, nil
}

// Connect selects the treadmill, connects, logs its services and subscribes
// to Treadmill Data. Every session starts from an empty reading. On subscribe
// failure the link is closed again.
func (c *Client) Connect(ctx context.Context) error {
	entry, err := c.SelectDevice(ctx)
	if err != nil {
		return err
	}

	device, err := c.central.Connect(ctx, entry.Address)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.device = device
	c.resetReadingLocked()
	c.mu.Unlock()
	c.logger.Printf("Client: Connected to %s (%s), RSSI %d dBm",
		device.GetLocalName(), device.GetAddressString(), device.GetScanRSSI())

	c.logServices(device)

	if err := device.EnableNotifications("", ftms.CharUUIDTreadmillData, c.HandleNotification); err != nil {
		c.logger.Printf("Client: Could not subscribe to Treadmill Data: %v", err)
		c.Close()
		return err
	}
	c.mu.Lock()
	c.subscribed = true
	c.mu.Unlock()
	c.logger.Printf("Client: Subscribed to Treadmill Data on %s", device.GetAddressString())
	return nil
}

// resetReadingLocked discards the session's reading, including the value
// replayed to late listeners. Must be called with mu held.
func (c *Client) resetReadingLocked() {
	c.reading = ftms.TreadmillReading{}
	c.readingEvent.Forget()
}

func (c *Client) logServices(device bt.BTDevice) {
	services, err := device.DiscoverAll()
	if err != nil {
		c.logger.Printf("Client: Service discovery failed: %v", err)
		return
	}
	for _, svc := range services {
		if strings.EqualFold(svc.UUID, ftms.ServiceUUIDFTMS) {
			c.logger.Printf("Client: Service: %s (Fitness Machine)", svc.UUID)
		} else {
			c.logger.Printf("Client: Service: %s", svc.UUID)
		}
		for _, ch := range svc.Characteristics {
			c.logger.Printf("Client:   Characteristic: %s", ch)
		}
	}
}

// Run connects and keeps the session open until ctx is cancelled or the
// treadmill disconnects. The link is always closed before returning.
func (c *Client) Run(ctx context.Context) error {
	disconnects := make(chan string, 1)
	stopListening := c.central.ListenToDisconnects(disconnects)
	defer stopListening()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	address := c.Device().GetAddressString()
	for {
		select {
		case <-ctx.Done():
			c.logger.Printf("Client: Stopping")
			return nil
		case addr := <-disconnects:
			if strings.EqualFold(addr, address) {
				c.logger.Printf("Client: Treadmill %s disconnected", addr)
				return ErrLinkLost
			}
		}
	}
}

// HandleNotification decodes one Treadmill Data payload. A payload too short
// to decode keeps the previous reading.
func (c *Client) HandleNotification(payload []byte) {
	c.mu.Lock()
	c.stats.Packets++
	reading, err := ftms.Decode(payload, c.reading)
	if err != nil {
		c.stats.TooShort++
		c.mu.Unlock()
		c.logger.Printf("Client: Dropped notification: %v", err)
		return
	}
	c.reading = reading
	c.mu.Unlock()

	c.logger.Printf("Client: %s", reading)
	c.readingEvent.Notify(reading)
}

// Reading returns the latest reading
func (c *Client) Reading() ftms.TreadmillReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reading
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Device returns the connected device, or nil
func (c *Client) Device() bt.BTDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// ListenToReadings registers a channel to receive every decoded reading.
// The latest reading is replayed on registration.
// Returns a deregistration function.
func (c *Client) ListenToReadings(ch chan<- ftms.TreadmillReading) func() {
	return c.readingEvent.Listen(ch)
}

// Close unsubscribes and disconnects from the treadmill, discarding the
// session's reading. Safe to call when not connected.
func (c *Client) Close() error {
	c.mu.Lock()
	device := c.device
	subscribed := c.subscribed
	c.device = nil
	c.subscribed = false
	c.resetReadingLocked()
	c.mu.Unlock()

	if device == nil {
		return nil
	}
	if subscribed && device.IsConnected() {
		if err := device.DisableNotifications("", ftms.CharUUIDTreadmillData); err != nil {
			c.logger.Printf("Client: Could not unsubscribe from Treadmill Data: %v", err)
		}
	}
	if err := c.central.Disconnect(device); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	c.logger.Printf("Client: Disconnected from treadmill")
	return nil
}
