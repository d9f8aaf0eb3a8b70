package homepilot

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseCapabilities(t *testing.T) {
	readOnly := true
	dev := RawDevice{Capabilities: []RawCapability{
		{Name: CapDeviceID, Value: 1010.0},
		{Name: CapName, Value: "Shutter", ReadOnly: &readOnly},
		{Name: CapTargetTemp, Value: "21.5", MinValue: "4", MaxValue: 28.0, StepSize: "0.5"},
		{Name: CapPing, Value: nil},
		{Name: "", Value: "ignored"},
	}}

	caps := ParseCapabilities(dev)

	if len(caps) != 4 {
		t.Errorf("len(caps) = %d, want 4", len(caps))
	}
	if got := caps.String(CapDeviceID); got != "1010" {
		t.Errorf("String(ID) = %q, want 1010", got)
	}
	if c := caps[CapName]; c.ReadOnly == nil || !*c.ReadOnly {
		t.Error("ReadOnly should be carried over")
	}

	target := caps[CapTargetTemp]
	if target.MinValue == nil || *target.MinValue != 4 {
		t.Errorf("MinValue = %v", target.MinValue)
	}
	if target.MaxValue == nil || *target.MaxValue != 28 {
		t.Errorf("MaxValue = %v", target.MaxValue)
	}
	if f, ok := caps.Float(CapTargetTemp); !ok || f != 21.5 {
		t.Errorf("Float(target) = %v, %v", f, ok)
	}
}

func TestCapabilityPresenceWithNullValue(t *testing.T) {
	caps := ParseCapabilities(RawDevice{Capabilities: []RawCapability{
		{Name: CapPing, Value: nil},
	}})

	if !caps.Has(CapPing) {
		t.Error("Has() should be true for a null-valued capability")
	}
	if caps.Has(CapGotoPosition) {
		t.Error("Has() should be false for an absent capability")
	}
	if got := caps.String(CapPing); got != "" {
		t.Errorf("String() of null = %q, want empty", got)
	}
}

func TestCapabilityDuplicateLaterWins(t *testing.T) {
	caps := ParseCapabilities(RawDevice{Capabilities: []RawCapability{
		{Name: CapName, Value: "first"},
		{Name: CapName, Value: "second"},
	}})
	if got := caps.String(CapName); got != "second" {
		t.Errorf("String(name) = %q, want second", got)
	}
}

func TestCapabilitiesFromJSON(t *testing.T) {
	body := `{"capabilities":[
		{"name":"ID_DEVICE_LOC","value":"1010","read_only":true,"timestamp":1700000000},
		{"name":"DEVICE_TYPE_LOC","value":2},
		{"name":"AUTO_MODE_CFG","value":"false"}
	]}`

	var dev RawDevice
	if err := json.Unmarshal([]byte(body), &dev); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	caps := ParseCapabilities(dev)

	ref, err := refFromCapabilities(caps)
	if err != nil {
		t.Fatalf("refFromCapabilities() error = %v", err)
	}
	if ref.ID != "1010" || ref.Type != "2" {
		t.Errorf("ref = %+v", ref)
	}
	if b, ok := caps.Bool(CapAutoMode); !ok || b {
		t.Errorf("Bool(auto) = %v, %v; want false, true", b, ok)
	}
}

func TestRefFromCapabilitiesMissingIdentity(t *testing.T) {
	tests := []struct {
		name string
		caps CapabilityMap
	}{
		{"no id", CapabilityMap{CapDeviceType: {Value: "2"}}},
		{"no type", CapabilityMap{CapDeviceID: {Value: "1010"}}},
		{"null id", CapabilityMap{CapDeviceID: {Value: nil}, CapDeviceType: {Value: "2"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := refFromCapabilities(tt.caps); !errors.Is(err, ErrMissingIdentity) {
				t.Errorf("error = %v, want ErrMissingIdentity", err)
			}
		})
	}
}

func TestCapThreshold(t *testing.T) {
	if got := CapThreshold(3); got != "TEMP_THRESH_CFG_3" {
		t.Errorf("CapThreshold(3) = %q", got)
	}
}

func TestValueNormalisation(t *testing.T) {
	floatTests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{12.5, 12.5, true},
		{"12.5", 12.5, true},
		{" 7 ", 7, true},
		{true, 1, true},
		{json.Number("3"), 3, true},
		{"abc", 0, false},
		{nil, 0, false},
	}
	for _, tt := range floatTests {
		got, ok := toFloat(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("toFloat(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	boolTests := []struct {
		in   any
		want bool
		ok   bool
	}{
		{true, true, true},
		{"false", false, true},
		{"1", true, true},
		{0.0, false, true},
		{"maybe", false, false},
	}
	for _, tt := range boolTests {
		got, ok := toBool(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("toBool(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	if got := formatValue(1010.0); got != "1010" {
		t.Errorf("formatValue(1010.0) = %q", got)
	}
	if got := formatValue(nil); got != "" {
		t.Errorf("formatValue(nil) = %q", got)
	}
}

func TestDecodeStateFormats(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantFormat StateFormat
		wantValid  bool
		check      func(t *testing.T, s DeviceState)
	}{
		{
			name:       "statuses map",
			body:       `{"did":1010,"statusValid":true,"statusesMap":{"Position":58}}`,
			wantFormat: FormatStatusesMap,
			wantValid:  true,
			check: func(t *testing.T, s DeviceState) {
				if v, ok := s.Status(statusPosition); !ok || v != 58 {
					t.Errorf("Status(Position) = %v, %v", v, ok)
				}
			},
		},
		{
			name:       "readings",
			body:       `{"did":"3030","statusValid":"true","readings":{"temperature_primary":"21.5","battery_level":80}}`,
			wantFormat: FormatReadings,
			wantValid:  true,
			check: func(t *testing.T, s DeviceState) {
				if p := s.ReadingFloat(readingTemperature); p == nil || *p != 21.5 {
					t.Errorf("temperature = %v", p)
				}
				if s.Battery == nil || *s.Battery != 80 {
					t.Errorf("Battery = %v, want 80 from readings", s.Battery)
				}
			},
		},
		{
			name:       "battery status wins",
			body:       `{"did":"3031","statusValid":true,"batteryStatus":55,"readings":{"battery_level":80}}`,
			wantFormat: FormatReadings,
			wantValid:  true,
			check: func(t *testing.T, s DeviceState) {
				if s.Battery == nil || *s.Battery != 55 {
					t.Errorf("Battery = %v, want 55", s.Battery)
				}
			},
		},
		{
			name:       "missing statusValid",
			body:       `{"did":"1011","statusesMap":{"Position":0}}`,
			wantFormat: FormatStatusesMap,
			wantValid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entry rawStateEntry
			if err := json.Unmarshal([]byte(tt.body), &entry); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			s := decodeState(entry)
			if s.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", s.Format, tt.wantFormat)
			}
			if s.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", s.Valid, tt.wantValid)
			}
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}
