package homepilot

// StateFormat identifies which wire encoding a bulk state entry used.
type StateFormat string

// State wire formats.
const (
	// FormatStatusesMap is the older positional encoding under "statusesMap".
	FormatStatusesMap StateFormat = "statuses_map"

	// FormatReadings is the newer capability-style encoding under "readings".
	FormatReadings StateFormat = "readings"

	// FormatHub marks the synthetic state built for the hub pseudo-device.
	FormatHub StateFormat = "hub"
)

// Well-known keys inside statusesMap.
const (
	statusPosition   = "Position"
	statusActualTemp = "acttemperatur"
	statusManualMode = "Manuellbetrieb"
	statusRGB        = "rgb"
	statusColorTemp  = "colortemperature"
	statusColorMode  = "colormode"
)

// rawStateEntry is one device in a bulk state response.
type rawStateEntry struct {
	DID           any            `json:"did"`
	StatusValid   any            `json:"statusValid"`
	StatusesMap   map[string]any `json:"statusesMap"`
	Readings      map[string]any `json:"readings"`
	BatteryStatus any            `json:"batteryStatus"`
}

// HubStatus is the combined state of the bridge itself.
type HubStatus struct {
	Firmware FirmwareStatus
	Version  FirmwareVersion
	LED      LEDStatus
}

// DeviceState is one observed state for one device, decoded from a bulk
// state entry. Device variants read it through the accessors below.
type DeviceState struct {
	// Valid mirrors the bridge's statusValid flag and drives availability.
	Valid bool

	// Format records which encoding the entry used.
	Format StateFormat

	Statuses map[string]any
	Readings map[string]any

	// Battery is the battery level in percent, when reported.
	Battery *float64

	// Hub is set only for the hub pseudo-device.
	Hub *HubStatus
}

// stateDecoder decodes one wire encoding of a bulk state entry.
type stateDecoder interface {
	format() StateFormat
	matches(entry rawStateEntry) bool
	decode(entry rawStateEntry, state *DeviceState)
}

// stateDecoders are tried in order; the first match wins.
var stateDecoders = []stateDecoder{
	readingsDecoder{},
	statusesMapDecoder{},
}

type readingsDecoder struct{}

func (readingsDecoder) format() StateFormat { return FormatReadings }

func (readingsDecoder) matches(entry rawStateEntry) bool {
	return entry.Readings != nil
}

func (readingsDecoder) decode(entry rawStateEntry, state *DeviceState) {
	state.Readings = copyMap(entry.Readings)
	// Newer firmware still sends the positional map for actuators.
	state.Statuses = copyMap(entry.StatusesMap)
	if state.Battery == nil {
		state.Battery = floatPtr(entry.Readings["battery_level"])
	}
}

type statusesMapDecoder struct{}

func (statusesMapDecoder) format() StateFormat { return FormatStatusesMap }

func (statusesMapDecoder) matches(rawStateEntry) bool { return true }

func (statusesMapDecoder) decode(entry rawStateEntry, state *DeviceState) {
	state.Statuses = copyMap(entry.StatusesMap)
	state.Readings = map[string]any{}
}

// decodeState turns a raw bulk entry into a DeviceState. A missing
// statusValid counts as invalid.
func decodeState(entry rawStateEntry) DeviceState {
	valid, _ := toBool(entry.StatusValid)
	state := DeviceState{
		Valid:   valid,
		Battery: floatPtr(entry.BatteryStatus),
	}
	for _, d := range stateDecoders {
		if d.matches(entry) {
			state.Format = d.format()
			d.decode(entry, &state)
			break
		}
	}
	return state
}

// Status returns a numeric statusesMap value.
func (s DeviceState) Status(key string) (float64, bool) {
	v, ok := s.Statuses[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// StatusValue returns a raw statusesMap value.
func (s DeviceState) StatusValue(key string) (any, bool) {
	v, ok := s.Statuses[key]
	return v, ok && v != nil
}

// Reading returns a raw reading.
func (s DeviceState) Reading(key string) (any, bool) {
	v, ok := s.Readings[key]
	return v, ok && v != nil
}

// ReadingFloat returns a numeric reading or nil.
func (s DeviceState) ReadingFloat(key string) *float64 {
	v, ok := s.Reading(key)
	if !ok {
		return nil
	}
	return floatPtr(v)
}

// ReadingBool returns a boolean reading or nil.
func (s DeviceState) ReadingBool(key string) *bool {
	v, ok := s.Reading(key)
	if !ok {
		return nil
	}
	return boolPtr(v)
}

// ReadingString returns a reading rendered as a string.
func (s DeviceState) ReadingString(key string) (string, bool) {
	v, ok := s.Reading(key)
	if !ok {
		return "", false
	}
	return formatValue(v), true
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
