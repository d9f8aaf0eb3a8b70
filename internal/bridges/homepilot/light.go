package homepilot

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RGB is a 24-bit colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex renders the colour the way the bridge expects it: 0xRRGGBB.
func (c RGB) Hex() string {
	return fmt.Sprintf("0x%02X%02X%02X", c.R, c.G, c.B)
}

// parseRGB accepts "0xRRGGBB", "#RRGGBB", "RRGGBB" or a packed number.
func parseRGB(v any) (RGB, bool) {
	var packed uint64
	switch val := v.(type) {
	case string:
		s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(val), "#"), "0x")
		s = strings.TrimPrefix(s, "0X")
		n, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return RGB{}, false
		}
		packed = n
	default:
		f, ok := toFloat(val)
		if !ok || f < 0 {
			return RGB{}, false
		}
		packed = uint64(f)
	}
	if packed > 0xFFFFFF {
		return RGB{}, false
	}
	return RGB{R: uint8(packed >> 16), G: uint8(packed >> 8), B: uint8(packed)}, true
}

// MiredToKelvin converts a colour temperature in mired to kelvin.
func MiredToKelvin(mired int) int {
	if mired <= 0 {
		return 0
	}
	return int(math.Round(1e6 / float64(mired)))
}

// KelvinToMired converts a colour temperature in kelvin to mired.
func KelvinToMired(kelvin int) int {
	if kelvin <= 0 {
		return 0
	}
	return int(math.Round(1e6 / float64(kelvin)))
}

// LightState is the observed state of a light.
type LightState struct {
	On bool `json:"on"`

	// Brightness is 0 to 100.
	Brightness int `json:"brightness"`

	RGB *RGB `json:"rgb,omitempty"`

	// ColorTemp is in mired.
	ColorTemp *int `json:"color_temp,omitempty"`

	ColorMode string `json:"color_mode,omitempty"`
}

// Light is a dimmer or a colour bulb.
type Light struct {
	base

	// Dimmable is true when the light accepts GOTO_POS_CMD.
	Dimmable bool

	HasRGB       bool
	HasColorTemp bool
	HasColorMode bool

	state LightState
}

// NewLight builds a light from its capability map.
func NewLight(caps CapabilityMap) *Light {
	return &Light{
		base:         base{identity: identityFromCapabilities(caps)},
		Dimmable:     caps.Has(CapGotoPosition),
		HasRGB:       caps.Has(CapRGB),
		HasColorTemp: caps.Has(CapColorTemp),
		HasColorMode: caps.Has(CapColorMode),
	}
}

func (l *Light) Kind() Kind { return KindLight }

// State returns the last observed state.
func (l *Light) State() LightState { return l.state }

// UpdateState reads the dim level from Position. Dimmers use the level
// directly, without the cover inversion.
func (l *Light) UpdateState(s DeviceState) {
	l.available = s.Valid

	next := LightState{}
	if pos, ok := s.Status(statusPosition); ok {
		next.Brightness = roundPercent(pos)
		next.On = next.Brightness != 0
	} else {
		next.On = l.state.On
		next.Brightness = l.state.Brightness
	}
	if l.HasRGB {
		if v, ok := s.StatusValue(statusRGB); ok {
			if c, ok := parseRGB(v); ok {
				next.RGB = &c
			}
		}
	}
	if l.HasColorTemp {
		if v, ok := s.Status(statusColorTemp); ok && v > 0 {
			mired := int(math.Round(v))
			next.ColorTemp = &mired
		}
	}
	if l.HasColorMode {
		if v, ok := s.StatusValue(statusColorMode); ok {
			next.ColorMode = formatValue(v)
		}
	}
	l.state = next
}

func (l *Light) StateMap() map[string]any {
	m := l.stateMap()
	m["on"] = l.state.On
	m["brightness"] = l.state.Brightness
	if l.state.RGB != nil {
		m["rgb"] = l.state.RGB.Hex()
	}
	optional(m, "color_temp", l.state.ColorTemp)
	if l.state.ColorMode != "" {
		m["color_mode"] = l.state.ColorMode
	}
	return m
}

func (l *Light) Clone() Device {
	cp := *l
	return &cp
}
