package homepilot

import "strconv"

// Default target temperature range of DuoFern radiator actuators, used
// when the capability record carries no bounds.
const (
	defaultTargetMin  = 4.0
	defaultTargetMax  = 28.0
	defaultTargetStep = 0.5
)

// Thermostat reading keys.
const (
	readingTargetTemp = "target_temperature"
	readingAutoMode   = "auto_mode"
)

// TemperatureRange bounds a settable temperature.
type TemperatureRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// Contains reports whether v lies within the range.
func (r TemperatureRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// ThermostatState is the observed state of a thermostat.
type ThermostatState struct {
	Temperature       *float64                 `json:"temperature,omitempty"`
	TargetTemperature *float64                 `json:"target_temperature,omitempty"`
	AutoMode          *bool                    `json:"auto_mode,omitempty"`
	Thresholds        [thresholdSlots]*float64 `json:"thresholds"`
}

// Thermostat is a radiator actuator or room thermostat.
type Thermostat struct {
	base

	HasTemperature       bool
	HasTargetTemperature bool
	HasAutoMode          bool
	HasThreshold         [thresholdSlots]bool

	// TargetRange bounds SetTargetTemperature.
	TargetRange TemperatureRange

	state ThermostatState
}

// NewThermostat builds a thermostat from its capability map.
func NewThermostat(caps CapabilityMap) *Thermostat {
	t := &Thermostat{
		base:                 base{identity: identityFromCapabilities(caps)},
		HasTemperature:       caps.Has(CapTemperature),
		HasTargetTemperature: caps.Has(CapTargetTemp),
		HasAutoMode:          caps.Has(CapAutoMode),
		TargetRange: TemperatureRange{
			Min:  defaultTargetMin,
			Max:  defaultTargetMax,
			Step: defaultTargetStep,
		},
	}
	if c, ok := caps[CapTargetTemp]; ok {
		if c.MinValue != nil {
			t.TargetRange.Min = *c.MinValue
		}
		if c.MaxValue != nil {
			t.TargetRange.Max = *c.MaxValue
		}
		if c.StepSize != nil && *c.StepSize > 0 {
			t.TargetRange.Step = *c.StepSize
		}
	}
	for i := 0; i < thresholdSlots; i++ {
		t.HasThreshold[i] = caps.Has(CapThreshold(i + 1))
	}
	return t
}

func (t *Thermostat) Kind() Kind { return KindThermostat }

// State returns the last observed state.
func (t *Thermostat) State() ThermostatState { return t.state }

// UpdateState prefers readings and falls back to the positional map,
// where temperatures are encoded in tenths of a degree.
func (t *Thermostat) UpdateState(s DeviceState) {
	t.available = s.Valid

	var next ThermostatState
	if t.HasTemperature {
		next.Temperature = s.ReadingFloat(readingTemperature)
		if next.Temperature == nil {
			next.Temperature = tenths(s, statusActualTemp)
		}
	}
	if t.HasTargetTemperature {
		next.TargetTemperature = s.ReadingFloat(readingTargetTemp)
		if next.TargetTemperature == nil {
			next.TargetTemperature = tenths(s, statusPosition)
		}
	}
	if t.HasAutoMode {
		next.AutoMode = s.ReadingBool(readingAutoMode)
		if next.AutoMode == nil {
			if manual, ok := s.Status(statusManualMode); ok {
				auto := manual == 0
				next.AutoMode = &auto
			}
		}
	}
	for i := 0; i < thresholdSlots; i++ {
		if t.HasThreshold[i] {
			next.Thresholds[i] = s.ReadingFloat(thresholdReading(i + 1))
		}
	}
	t.state = next
}

func (t *Thermostat) StateMap() map[string]any {
	m := t.stateMap()
	optional(m, "temperature", t.state.Temperature)
	optional(m, "target_temperature", t.state.TargetTemperature)
	optional(m, "auto_mode", t.state.AutoMode)
	for i, v := range t.state.Thresholds {
		optional(m, thresholdReading(i+1), v)
	}
	return m
}

func (t *Thermostat) Clone() Device {
	cp := *t
	return &cp
}

func thresholdReading(n int) string {
	return "temperature_threshold_" + strconv.Itoa(n)
}

// tenths reads a statusesMap value encoded in tenths.
func tenths(s DeviceState, key string) *float64 {
	v, ok := s.Status(key)
	if !ok {
		return nil
	}
	v /= 10
	return &v
}
