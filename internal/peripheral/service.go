// Package peripheral serves a synthetic Running Speed and Cadence footpod:
// a read-only RSC Feature characteristic and a notify-only RSC Measurement
// characteristic fed by a constant-pace simulator.
package peripheral

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/events"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/gatt"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/rsc"
)

// DefaultAppPath is the attribute tree root used when Config.AppPath is empty
const DefaultAppPath = "/org/bluez/footpod"

// milestoneM is how often, in metres, a status line is logged
const milestoneM = 100.0

// Config holds the peripheral's pace and identity
type Config struct {
	SpeedKmh     float64
	CadenceRPM   uint8
	LocalName    string
	AppPath      string
	TickInterval time.Duration
}

// Role distinguishes the two RSC characteristics
type Role int

const (
	RoleFeature Role = iota
	RoleMeasurement
)

func (r Role) String() string {
	switch r {
	case RoleFeature:
		return "RSC Feature"
	case RoleMeasurement:
		return "RSC Measurement"
	default:
		return "Unknown"
	}
}

// SubscriptionChange is emitted when a characteristic starts or stops notifying
type SubscriptionChange struct {
	Path      string
	Role      Role
	Notifying bool
}

// characteristic pairs a tree node with the hooks that give it behaviour.
// A nil read hook means the characteristic is not readable; a nil tick hook
// means it never notifies.
type characteristic struct {
	node      *gatt.Node
	role      Role
	notifying bool
	read      func() []byte
	tick      func(now time.Time) []byte
	activate  func(now time.Time)
}

type pushedValue struct {
	path  string
	value []byte
}

// Service composes the attribute tree, RSC encoder and pace simulator.
// All exported methods are safe to call from host-stack goroutines.
type Service struct {
	cfg    Config
	host   Host
	logger *log.Logger
	clock  func() time.Time

	mu              sync.Mutex
	app             *gatt.Node
	rscService      *gatt.Node
	characteristics []*characteristic
	byPath          map[string]*characteristic
	pace            *rsc.PaceState
	nextMilestoneM  float64
	advertisement   *Advertisement

	// subMu orders subscription changes with their events. Taken before mu.
	subMu             sync.Mutex
	subscriptionEvent *events.CallbackEvent[SubscriptionChange]

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Verify Service implements Handler
var _ Handler = (*Service)(nil)

// NewService builds the RSC attribute tree. clock may be nil to use time.Now.
func NewService(cfg Config, host Host, logger *log.Logger, clock func() time.Time) (*Service, error) {
	if host == nil {
		panic("Service: host cannot be nil")
	}
	if logger == nil {
		panic("Service: logger cannot be nil")
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.AppPath == "" {
		cfg.AppPath = DefaultAppPath
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	s := &Service{
		cfg:               cfg,
		host:              host,
		logger:            logger,
		clock:             clock,
		byPath:            make(map[string]*characteristic),
		pace:              rsc.NewPaceState(cfg.SpeedKmh, cfg.CadenceRPM, clock()),
		nextMilestoneM:    milestoneM,
		subscriptionEvent: events.NewCallbackEvent[SubscriptionChange](false),
	}
	if err := s.buildTree(); err != nil {
		return nil, err
	}

	s.advertisement = &Advertisement{
		Path:      cfg.AppPath + "/advertisement0",
		Type:      AdvertisementPeripheral,
		LocalName: cfg.LocalName,
	}
	s.advertisement.AddServiceUUID(s.rscService.UUID())
	return s, nil
}

func (s *Service) buildTree() error {
	s.app = gatt.NewApplication(s.cfg.AppPath)
	s.rscService = gatt.NewService(uuid.MustParse(rsc.ServiceUUIDRSC), true)
	if err := gatt.AddChild(s.app, s.rscService); err != nil {
		return err
	}

	feature := &characteristic{
		node: gatt.NewCharacteristic(uuid.MustParse(rsc.CharUUIDRSCFeature), gatt.FlagRead),
		role: RoleFeature,
		read: rsc.EncodeFeature,
	}
	measurement := &characteristic{
		node: gatt.NewCharacteristic(uuid.MustParse(rsc.CharUUIDRSCMeasurement), gatt.FlagNotify),
		role: RoleMeasurement,
		tick: s.measurementTick,
		// idle time is not run: the simulator resumes from where it stopped
		activate: s.pace.Rebase,
	}

	for _, c := range []*characteristic{feature, measurement} {
		if err := gatt.AddChild(s.rscService, c.node); err != nil {
			return err
		}
		s.characteristics = append(s.characteristics, c)
		s.byPath[c.node.Path()] = c
	}
	return nil
}

// measurementTick must be called with mu held
func (s *Service) measurementTick(now time.Time) []byte {
	value := rsc.AdvanceAndEncode(s.pace, now)
	if s.pace.TotalDistanceM >= s.nextMilestoneM {
		s.logger.Printf("Service: %s", s.pace)
		s.nextMilestoneM = (math.Floor(s.pace.TotalDistanceM/milestoneM) + 1) * milestoneM
	}
	return value
}

// Start registers the attribute tree and advertisement with the host and
// starts the periodic tick. Registration failures are returned as
// *RegistrationError and are not retried.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("service already started")
	}
	s.started = true
	s.mu.Unlock()

	objects := gatt.CollectManagedObjects(s.app)
	if err := s.host.RegisterAttributeTree(s.app.Path(), objects, s); err != nil {
		s.clearStarted()
		return asRegistrationError("attribute tree", err)
	}
	s.logger.Printf("Service: Registered %d GATT objects under %s", len(objects), s.app.Path())

	if err := s.host.RegisterAdvertisement(s.advertisement); err != nil {
		s.clearStarted()
		return asRegistrationError("advertisement", err)
	}
	s.logger.Printf("Service: Advertising %q with service %s", s.advertisement.LocalName, rsc.ServiceUUIDRSC)
	s.logBanner()

	tickCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go_func_utils.SafeGo(s.logger, &s.wg, "peripheral tick loop", func() {
		defer s.logger.Printf("Service: exiting tick loop")
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	})
	return nil
}

func (s *Service) clearStarted() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

func (s *Service) logBanner() {
	pace := s.Pace()
	s.logger.Printf("Service: Device name: %s", s.cfg.LocalName)
	s.logger.Printf("Service: Speed: %.1f km/h (%.2f m/s)", pace.SpeedKmh, pace.SpeedMps)
	s.logger.Printf("Service: Cadence: %d RPM", pace.CadenceRPM)
	s.logger.Printf("Service: Stride length: %.2f m", pace.StrideLengthM)
	s.logger.Printf("Service: Pace: %.2f min/km", pace.PaceMinPerKm())
}

// Stop halts the tick loop and forces every characteristic back to idle.
// Safe to call more than once and before Start.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.Disconnect()
}

// Tick pushes a fresh value for every notifying characteristic. While no
// client is subscribed it does nothing, so distance does not advance.
func (s *Service) Tick() {
	now := s.clock()

	s.mu.Lock()
	var pushes []pushedValue
	for _, c := range s.characteristics {
		if c.tick == nil || !c.notifying {
			continue
		}
		pushes = append(pushes, pushedValue{path: c.node.Path(), value: c.tick(now)})
	}
	s.mu.Unlock()

	for _, p := range pushes {
		s.host.PushValueChanged(p.path, p.value)
	}
}

// OnRead returns the current value of a readable characteristic
func (s *Service) OnRead(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPath[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, path)
	}
	if c.read == nil {
		return nil, fmt.Errorf("%w: read on %s", ErrNotSupported, c.role)
	}
	return c.read(), nil
}

// OnWrite rejects every write; no RSC characteristic here is writable
func (s *Service) OnWrite(path string, value []byte) error {
	s.mu.Lock()
	c, ok := s.byPath[path]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, path)
	}
	return fmt.Errorf("%w: write on %s", ErrNotSupported, c.role)
}

// OnSubscribe moves a notify-capable characteristic from idle to active.
// Subscribing while already active is a no-op.
func (s *Service) OnSubscribe(path string) {
	s.setNotifying(path, true)
}

// OnUnsubscribe moves a characteristic from active to idle.
// Unsubscribing while idle is a no-op.
func (s *Service) OnUnsubscribe(path string) {
	s.setNotifying(path, false)
}

// Disconnect forces every characteristic to idle, as when the remote
// client goes away without unsubscribing
func (s *Service) Disconnect() {
	s.mu.Lock()
	paths := make([]string, 0, len(s.characteristics))
	for _, c := range s.characteristics {
		paths = append(paths, c.node.Path())
	}
	s.mu.Unlock()

	for _, p := range paths {
		s.setNotifying(p, false)
	}
}

func (s *Service) setNotifying(path string, notifying bool) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mu.Lock()
	c, ok := s.byPath[path]
	if !ok {
		s.mu.Unlock()
		s.logger.Printf("Service: Ignoring subscription change for unknown path %s", path)
		return
	}
	if c.tick == nil {
		s.mu.Unlock()
		if notifying {
			s.logger.Printf("Service: %s does not support notifications", c.role)
		}
		return
	}
	if c.notifying == notifying {
		s.mu.Unlock()
		return
	}
	c.notifying = notifying
	if notifying && c.activate != nil {
		c.activate(s.clock())
	}
	change := SubscriptionChange{Path: path, Role: c.role, Notifying: notifying}
	s.mu.Unlock()

	if notifying {
		s.logger.Printf("Service: Client connected, %s notifications started", c.role)
	} else {
		s.logger.Printf("Service: Client disconnected, %s notifications stopped", c.role)
	}
	s.subscriptionEvent.Notify(change)
}

// ListenToSubscriptions registers a callback for subscription changes.
// Callbacks see changes in the order they were applied and must not
// subscribe or unsubscribe themselves.
// Returns a deregistration function.
func (s *Service) ListenToSubscriptions(callback func(SubscriptionChange)) func() {
	return s.subscriptionEvent.Listen(callback)
}

// IsNotifying reports whether the characteristic at path is active
func (s *Service) IsNotifying(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byPath[path]
	return ok && c.notifying
}

// PathFor returns the attribute path of the characteristic with the given role
func (s *Service) PathFor(role Role) string {
	for _, c := range s.characteristics {
		if c.role == role {
			return c.node.Path()
		}
	}
	return ""
}

// Tree returns the application root of the attribute tree
func (s *Service) Tree() *gatt.Node {
	return s.app
}

func (s *Service) Advertisement() *Advertisement {
	return s.advertisement
}

// Pace returns a copy of the simulator state
func (s *Service) Pace() rsc.PaceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.pace
}
