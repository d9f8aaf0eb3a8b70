package homepilot

import "fmt"

// Capability names reported by the bridge.
const (
	CapProtocolID      = "PROT_ID_DEVICE_LOC"
	CapDeviceID        = "ID_DEVICE_LOC"
	CapName            = "NAME_DEVICE_LOC"
	CapProductCode     = "PROD_CODE_DEVICE_LOC"
	CapVersion         = "VERSION_CFG"
	CapPing            = "PING_CMD"
	CapReachability    = "REACHABILITY_EVT"
	CapDeviceType      = "DEVICE_TYPE_LOC"
	CapDeviceGroup     = "DEVICE_GROUP_LOC"
	CapGotoPosition    = "GOTO_POS_CMD"
	CapCurrentPosition = "CURR_POS_CFG"
	CapSwitchPosition  = "CURR_SWITCH_POS_CFG"
	CapSunDirection    = "SUN_DIRECTION_MEA"
	CapSunHeight       = "SUN_HEIGHT_DEG_MEA"
	CapLightLux        = "LIGHT_VAL_LUX_MEA"
	CapWindSpeed       = "WIND_SPEED_MS_MEA"
	CapTemperature     = "TEMP_CURR_DEG_MEA"
	CapRainDetection   = "RAIN_DETECTION_MEA"
	CapSunDetection    = "SUN_DETECTION_MEA"
	CapCloseContact    = "CLOSE_CONTACT_MEA"
	CapBattery         = "BATTERY_LVL_PCT_MEA"
	CapTargetTemp      = "TARGET_TEMPERATURE_CFG"
	CapAutoMode        = "AUTO_MODE_CFG"
	CapRGB             = "RGB_CFG"
	CapColorTemp       = "COLOR_TEMP_CFG"
	CapColorMode       = "COLOR_MODE_CFG"
	CapVentilationPos  = "VENTIL_POS_CFG"
	CapVentilationMode = "VENTIL_POS_MODE_CFG"
)

// thresholdSlots is the number of temperature threshold slots a
// thermostat can expose.
const thresholdSlots = 4

// CapThreshold returns the capability name of threshold slot n (1-based).
func CapThreshold(n int) string {
	return fmt.Sprintf("TEMP_THRESH_CFG_%d", n)
}

// Capability is one named attribute of a device. Optional fields are nil
// when the bridge did not send them or sent null.
type Capability struct {
	Value     any      `json:"value"`
	ReadOnly  *bool    `json:"read_only,omitempty"`
	Timestamp any      `json:"timestamp,omitempty"`
	MinValue  *float64 `json:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty"`
	StepSize  *float64 `json:"step_size,omitempty"`
}

// CapabilityMap maps capability names to records.
type CapabilityMap map[string]Capability

// ParseCapabilities builds a capability map from a raw device.
// Entries without a name are ignored. A later duplicate wins.
func ParseCapabilities(dev RawDevice) CapabilityMap {
	m := make(CapabilityMap, len(dev.Capabilities))
	for _, raw := range dev.Capabilities {
		if raw.Name == "" {
			continue
		}
		m[raw.Name] = Capability{
			Value:     raw.Value,
			ReadOnly:  raw.ReadOnly,
			Timestamp: raw.Timestamp,
			MinValue:  floatPtr(raw.MinValue),
			MaxValue:  floatPtr(raw.MaxValue),
			StepSize:  floatPtr(raw.StepSize),
		}
	}
	return m
}

// Has reports whether the capability is present, whatever its value.
func (m CapabilityMap) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// String returns the capability value as a string, or "" if absent or null.
func (m CapabilityMap) String(name string) string {
	c, ok := m[name]
	if !ok {
		return ""
	}
	return formatValue(c.Value)
}

// Float returns the numeric capability value.
func (m CapabilityMap) Float(name string) (float64, bool) {
	c, ok := m[name]
	if !ok {
		return 0, false
	}
	return toFloat(c.Value)
}

// Bool returns the boolean capability value.
func (m CapabilityMap) Bool(name string) (bool, bool) {
	c, ok := m[name]
	if !ok {
		return false, false
	}
	return toBool(c.Value)
}

// deviceRef is the discovery-time identity of a device.
type deviceRef struct {
	ID   string
	Type string
}

// refFromCapabilities extracts the device ID and type code.
func refFromCapabilities(m CapabilityMap) (deviceRef, error) {
	ref := deviceRef{
		ID:   m.String(CapDeviceID),
		Type: m.String(CapDeviceType),
	}
	if ref.ID == "" || ref.Type == "" {
		return deviceRef{}, fmt.Errorf("%w: id=%q type=%q", ErrMissingIdentity, ref.ID, ref.Type)
	}
	return ref, nil
}
