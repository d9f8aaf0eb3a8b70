package homepilot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Device type codes reported in DEVICE_TYPE_LOC.
const (
	TypeCodeHub        = HubID
	TypeCodeActuator   = "1"
	TypeCodeCover      = "2"
	TypeCodeSensor     = "3"
	TypeCodeThermostat = "5"
)

// defaultFetchConcurrency bounds parallel detail fetches during build.
const defaultFetchConcurrency = 4

// Transport is the subset of Client the Manager needs.
// This allows mocking the bridge in tests.
type Transport interface {
	GetDevices(ctx context.Context) ([]RawDevice, error)
	GetDevice(ctx context.Context, id string) (RawDevice, error)
	GetDevicesState(ctx context.Context) (map[string]DeviceState, error)
	GetFirmwareStatus(ctx context.Context) (FirmwareStatus, error)
	GetFirmwareVersion(ctx context.Context) (FirmwareVersion, error)
	GetNodename(ctx context.Context) (string, error)
	GetLEDStatus(ctx context.Context) (LEDStatus, error)
	SendCommand(ctx context.Context, id, name string, value any) error
	SetLED(ctx context.Context, on bool) error
	SetAutoUpdate(ctx context.Context, on bool) error
	StartFirmwareUpdate(ctx context.Context) error
	GetScenes(ctx context.Context) ([]RawScene, error)
	ExecuteScene(ctx context.Context, id string) error
}

// builder constructs a device variant from a capability map.
type builder func(CapabilityMap) Device

// dispatchTable maps type codes to builders. Codes not listed are
// skipped during build.
var dispatchTable = []struct {
	code  string
	build builder
}{
	{TypeCodeHub, func(c CapabilityMap) Device { return NewHub(c) }},
	{TypeCodeActuator, buildActuator},
	{TypeCodeCover, func(c CapabilityMap) Device { return NewCover(c) }},
	{TypeCodeSensor, func(c CapabilityMap) Device { return NewSensor(c) }},
	{TypeCodeThermostat, func(c CapabilityMap) Device { return NewThermostat(c) }},
}

// lookupBuilder returns the builder for a type code.
func lookupBuilder(code string) (builder, bool) {
	for _, entry := range dispatchTable {
		if entry.code == code {
			return entry.build, true
		}
	}
	return nil, false
}

// buildActuator picks the variant for type code 1. Colour and dimmable
// actuators are lights, everything else is a switch.
func buildActuator(caps CapabilityMap) Device {
	if caps.Has(CapRGB) || caps.Has(CapColorTemp) || caps.Has(CapGotoPosition) {
		return NewLight(caps)
	}
	return NewSwitch(caps)
}

// ManagerOptions holds configuration for the device registry.
type ManagerOptions struct {
	// Exclude lists device IDs to leave out of the registry.
	Exclude []string

	// FetchConcurrency bounds parallel detail fetches. Default: 4.
	FetchConcurrency int

	// Logger is optional.
	Logger Logger
}

// Manager owns the device registry and the transport used to refresh it.
//
// Thread Safety: All methods are safe for concurrent use. Reconciles are
// serialised; readers see either the previous or the next cycle, never a
// mix.
type Manager struct {
	transport   Transport
	exclude     map[string]struct{}
	concurrency int

	mu      sync.RWMutex
	devices map[string]Device
	scenes  map[string]Scene

	// reconcileMu serialises Reconcile and Rebuild.
	reconcileMu   sync.Mutex
	lastReconcile time.Time

	logger   Logger
	loggerMu sync.RWMutex
}

// NewManager creates a manager with an empty registry.
// Call Rebuild to populate it, or use Build.
func NewManager(t Transport, opts ManagerOptions) *Manager {
	concurrency := opts.FetchConcurrency
	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}
	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, id := range opts.Exclude {
		exclude[id] = struct{}{}
	}
	return &Manager{
		transport:   t,
		exclude:     exclude,
		concurrency: concurrency,
		devices:     make(map[string]Device),
		scenes:      make(map[string]Scene),
		logger:      opts.Logger,
	}
}

// Build discovers every supported device and returns a populated manager.
//
// Parameters:
//   - ctx: Context for the discovery requests
//   - t: Bridge transport
//   - opts: Registry options
//
// Returns:
//   - *Manager: Registry holding every supported device plus the hub
//   - error: If discovery or any detail fetch fails
func Build(ctx context.Context, t Transport, opts ManagerOptions) (*Manager, error) {
	m := NewManager(t, opts)
	if err := m.Rebuild(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Rebuild rediscovers the devices and scenes and replaces the registry
// wholesale. On error the previous registry is kept.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()

	devices, err := m.discover(ctx)
	if err != nil {
		return err
	}
	scenes, err := m.discoverScenes(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.devices = devices
	m.scenes = scenes
	m.mu.Unlock()

	m.logInfo("device registry built", "devices", len(devices), "scenes", len(scenes))
	return nil
}

// discover lists devices, fetches their details concurrently and builds
// the variants.
func (m *Manager) discover(ctx context.Context) (map[string]Device, error) {
	raw, err := m.transport.GetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	refs := make([]deviceRef, 0, len(raw)+1)
	for _, d := range raw {
		ref, err := refFromCapabilities(ParseCapabilities(d))
		if err != nil {
			m.logWarn("skipping device without identity", "error", err)
			continue
		}
		refs = append(refs, ref)
	}
	refs = append(refs, deviceRef{ID: HubID, Type: TypeCodeHub})

	built := make([]Device, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, ref := range refs {
		build, ok := lookupBuilder(ref.Type)
		if !ok {
			m.logDebug("skipping unsupported device type", "device_id", ref.ID, "type", ref.Type)
			continue
		}
		if _, skip := m.exclude[ref.ID]; skip {
			m.logDebug("skipping excluded device", "device_id", ref.ID)
			continue
		}
		i, ref := i, ref
		g.Go(func() error {
			caps, err := m.fetchCapabilities(gctx, ref)
			if err != nil {
				return fmt.Errorf("fetching device %s: %w", ref.ID, err)
			}
			built[i] = build(caps)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	devices := make(map[string]Device, len(built))
	for i, d := range built {
		if d != nil {
			devices[refs[i].ID] = d
		}
	}
	return devices, nil
}

// fetchCapabilities returns the capability map of one device. The hub
// has no detail endpoint; its map is synthesised.
func (m *Manager) fetchCapabilities(ctx context.Context, ref deviceRef) (CapabilityMap, error) {
	if ref.ID == HubID {
		nodename, err := m.transport.GetNodename(ctx)
		if err != nil {
			return nil, err
		}
		version, err := m.transport.GetFirmwareVersion(ctx)
		if err != nil {
			return nil, err
		}
		return HubCapabilities(nodename, version), nil
	}

	raw, err := m.transport.GetDevice(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	return ParseCapabilities(raw), nil
}

// Device returns a copy of one device.
func (m *Manager) Device(id string) (Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d.Clone(), nil
}

// Devices returns a copy of the whole registry.
func (m *Manager) Devices() map[string]Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// snapshotLocked clones the registry. Caller must hold mu.
func (m *Manager) snapshotLocked() map[string]Device {
	out := make(map[string]Device, len(m.devices))
	for id, d := range m.devices {
		out[id] = d.Clone()
	}
	return out
}

// IDs returns the registry's device IDs in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Count returns the number of devices in the registry.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

// LastReconcile returns when the last successful reconcile finished.
func (m *Manager) LastReconcile() time.Time {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()
	return m.lastReconcile
}

// SetLogger sets the logger for this manager.
func (m *Manager) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

func (m *Manager) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

func (m *Manager) logDebug(msg string, keysAndValues ...any) {
	if logger := m.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (m *Manager) logInfo(msg string, keysAndValues ...any) {
	if logger := m.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (m *Manager) logWarn(msg string, keysAndValues ...any) {
	if logger := m.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
