package homepilot

// ContactState is the position of a window or door contact.
type ContactState string

// Contact positions.
const (
	ContactOpen   ContactState = "open"
	ContactTilted ContactState = "tilted"
	ContactClosed ContactState = "closed"
)

// parseContact maps the bridge's contact reading. Anything other than
// closed or tilted is open.
func parseContact(v string) ContactState {
	switch v {
	case "closed":
		return ContactClosed
	case "tilted":
		return ContactTilted
	default:
		return ContactOpen
	}
}

// Sensor reading keys.
const (
	readingTemperature = "temperature_primary"
	readingWindSpeed   = "wind_speed"
	readingBrightness  = "sun_brightness"
	readingSunHeight   = "sun_elevation"
	readingSunDir      = "sun_direction"
	readingRain        = "rain_detected"
	readingSunDetected = "sun_detected"
	readingContact     = "contact_state"
)

// SensorFeatures records which measurements a sensor exposes.
// It is fixed when the sensor is built.
type SensorFeatures struct {
	Temperature   bool `json:"temperature"`
	WindSpeed     bool `json:"wind_speed"`
	Brightness    bool `json:"brightness"`
	SunHeight     bool `json:"sun_height"`
	SunDirection  bool `json:"sun_direction"`
	RainDetection bool `json:"rain_detection"`
	SunDetection  bool `json:"sun_detection"`
	ContactState  bool `json:"contact_state"`
	Battery       bool `json:"battery"`
}

// SensorState holds the last readings. A nil field was not reported or
// is not supported by the sensor.
type SensorState struct {
	Temperature  *float64      `json:"temperature,omitempty"`
	WindSpeed    *float64      `json:"wind_speed,omitempty"`
	Brightness   *float64      `json:"brightness,omitempty"`
	SunHeight    *float64      `json:"sun_height,omitempty"`
	SunDirection *float64      `json:"sun_direction,omitempty"`
	Rain         *bool         `json:"rain,omitempty"`
	SunDetected  *bool         `json:"sun_detected,omitempty"`
	Contact      *ContactState `json:"contact,omitempty"`
	Battery      *float64      `json:"battery,omitempty"`
}

// Sensor is a measuring device: weather station, contact, thermometer.
type Sensor struct {
	base
	features SensorFeatures
	state    SensorState
}

// NewSensor builds a sensor from its capability map. A capability counts
// as present even when its value is null.
func NewSensor(caps CapabilityMap) *Sensor {
	return &Sensor{
		base: base{identity: identityFromCapabilities(caps)},
		features: SensorFeatures{
			Temperature:   caps.Has(CapTemperature),
			WindSpeed:     caps.Has(CapWindSpeed),
			Brightness:    caps.Has(CapLightLux),
			SunHeight:     caps.Has(CapSunHeight),
			SunDirection:  caps.Has(CapSunDirection),
			RainDetection: caps.Has(CapRainDetection),
			SunDetection:  caps.Has(CapSunDetection),
			ContactState:  caps.Has(CapCloseContact),
			Battery:       caps.Has(CapBattery),
		},
	}
}

func (s *Sensor) Kind() Kind { return KindSensor }

// Features returns the measurements this sensor exposes.
func (s *Sensor) Features() SensorFeatures { return s.features }

// State returns the last readings.
func (s *Sensor) State() SensorState { return s.state }

func (s *Sensor) UpdateState(st DeviceState) {
	s.available = st.Valid

	var next SensorState
	f := s.features
	if f.Temperature {
		next.Temperature = st.ReadingFloat(readingTemperature)
	}
	if f.WindSpeed {
		next.WindSpeed = st.ReadingFloat(readingWindSpeed)
	}
	if f.Brightness {
		next.Brightness = st.ReadingFloat(readingBrightness)
	}
	if f.SunHeight {
		next.SunHeight = st.ReadingFloat(readingSunHeight)
	}
	if f.SunDirection {
		next.SunDirection = st.ReadingFloat(readingSunDir)
	}
	if f.RainDetection {
		next.Rain = st.ReadingBool(readingRain)
	}
	if f.SunDetection {
		next.SunDetected = st.ReadingBool(readingSunDetected)
	}
	if f.ContactState {
		if v, ok := st.ReadingString(readingContact); ok {
			c := parseContact(v)
			next.Contact = &c
		}
	}
	if f.Battery {
		next.Battery = st.Battery
	}
	s.state = next
}

func (s *Sensor) StateMap() map[string]any {
	m := s.stateMap()
	optional(m, "temperature", s.state.Temperature)
	optional(m, "wind_speed", s.state.WindSpeed)
	optional(m, "brightness", s.state.Brightness)
	optional(m, "sun_height", s.state.SunHeight)
	optional(m, "sun_direction", s.state.SunDirection)
	optional(m, "rain", s.state.Rain)
	optional(m, "sun_detected", s.state.SunDetected)
	if s.state.Contact != nil {
		m["contact"] = string(*s.state.Contact)
	}
	optional(m, "battery", s.state.Battery)
	return m
}

func (s *Sensor) Clone() Device {
	cp := *s
	return &cp
}
