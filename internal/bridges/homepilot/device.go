package homepilot

// Kind tags a device variant. Consumers switch on Kind rather than on
// concrete types.
type Kind string

// Device kinds.
const (
	KindHub        Kind = "hub"
	KindSwitch     Kind = "switch"
	KindCover      Kind = "cover"
	KindSensor     Kind = "sensor"
	KindThermostat Kind = "thermostat"
	KindLight      Kind = "light"
)

// Manufacturer is reported for every device.
const Manufacturer = "Rademacher"

// Identity holds the fixed descriptive fields of a device.
type Identity struct {
	ID              string `json:"id"`
	UID             string `json:"uid"`
	Name            string `json:"name"`
	ProductCode     string `json:"product_code"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
	DeviceGroup     string `json:"device_group"`
	Manufacturer    string `json:"manufacturer"`
	SupportsPing    bool   `json:"supports_ping"`
}

// Device is one entry of the registry.
//
// Implementations are not safe for concurrent use; the Manager guards
// them and hands out clones.
type Device interface {
	// Identity returns the fixed descriptive fields.
	Identity() Identity

	// Kind returns the variant tag.
	Kind() Kind

	// Available reports whether the last reconcile saw valid state.
	Available() bool

	// UpdateState replaces the observed state with one decoded from s.
	UpdateState(s DeviceState)

	// MarkUnavailable clears availability and keeps the last state.
	MarkUnavailable()

	// StateMap renders availability and state as a flat map.
	StateMap() map[string]any

	// Clone returns an independent copy.
	Clone() Device
}

// base carries the fields every variant shares.
type base struct {
	identity  Identity
	available bool
}

func (b *base) Identity() Identity { return b.identity }

func (b *base) Available() bool { return b.available }

func (b *base) MarkUnavailable() { b.available = false }

// stateMap starts a state map with the common fields.
func (b *base) stateMap() map[string]any {
	return map[string]any{"available": b.available}
}

// identityFromCapabilities reads the common identity capabilities.
func identityFromCapabilities(caps CapabilityMap) Identity {
	code := caps.String(CapProductCode)
	group := caps.String(CapDeviceGroup)
	if group == "" {
		group = caps.String(CapDeviceType)
	}
	return Identity{
		ID:              caps.String(CapDeviceID),
		UID:             caps.String(CapProtocolID),
		Name:            caps.String(CapName),
		ProductCode:     code,
		Model:           ModelName(code),
		FirmwareVersion: caps.String(CapVersion),
		DeviceGroup:     group,
		Manufacturer:    Manufacturer,
		SupportsPing:    caps.Has(CapPing),
	}
}

// Wire positions count 100 as fully closed; positions here count 100 as
// fully open. The conversion is its own inverse.

// readPosition converts a wire position to an open-is-100 position.
func readPosition(wire int) int {
	return 100 - wire
}

// writePosition converts an open-is-100 position to a wire position.
func writePosition(position int) int {
	return 100 - position
}

// optional copies a pointer target into a map entry when set.
func optional[T any](m map[string]any, key string, v *T) {
	if v != nil {
		m[key] = *v
	}
}
