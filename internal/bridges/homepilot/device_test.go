package homepilot

import (
	"encoding/json"
	"testing"
)

func capsOf(d RawDevice) CapabilityMap {
	return ParseCapabilities(d)
}

func TestPositionConversionRoundTrip(t *testing.T) {
	for p := 0; p <= 100; p++ {
		if got := readPosition(writePosition(p)); got != p {
			t.Fatalf("readPosition(writePosition(%d)) = %d", p, got)
		}
		if got := writePosition(p); got != 100-p {
			t.Fatalf("writePosition(%d) = %d, want %d", p, got, 100-p)
		}
	}
}

func TestIdentityFromCapabilities(t *testing.T) {
	caps := capsOf(rawDevice("1010", TypeCodeCover, "Shutter",
		RawCapability{Name: CapPing},
		RawCapability{Name: CapDeviceGroup, Value: "2"},
	))
	id := identityFromCapabilities(caps)

	if id.ID != "1010" || id.UID != "uid-1010" || id.Name != "Shutter" {
		t.Errorf("identity = %+v", id)
	}
	if id.Model != "DuoFern tubular motor" {
		t.Errorf("Model = %q", id.Model)
	}
	if id.DeviceGroup != "2" {
		t.Errorf("DeviceGroup = %q, want 2", id.DeviceGroup)
	}
	if !id.SupportsPing {
		t.Error("SupportsPing should be true")
	}
}

func TestIdentityDeviceGroupFallsBackToType(t *testing.T) {
	caps := capsOf(rawDevice("1010", TypeCodeCover, "Shutter"))
	if got := identityFromCapabilities(caps).DeviceGroup; got != TypeCodeCover {
		t.Errorf("DeviceGroup = %q, want %q", got, TypeCodeCover)
	}
}

func TestCoverUpdateState(t *testing.T) {
	tests := []struct {
		name       string
		wire       float64
		wantPos    int
		wantClosed bool
	}{
		{"fully closed", 100, 0, true},
		{"fully open", 0, 100, false},
		{"partly", 58, 42, false},
		{"rounds", 57.6, 42, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCover(capsOf(rawDevice("1010", TypeCodeCover, "Shutter")))
			c.UpdateState(positionState(tt.wire))

			st := c.State()
			if st.Position != tt.wantPos {
				t.Errorf("Position = %d, want %d", st.Position, tt.wantPos)
			}
			if st.Closed() != tt.wantClosed {
				t.Errorf("Closed() = %v, want %v", st.Closed(), tt.wantClosed)
			}
			if st.Opening || st.Closing {
				t.Error("motion flags should be false")
			}
		})
	}
}

func TestCoverKeepsPositionWithoutStatus(t *testing.T) {
	c := NewCover(capsOf(rawDevice("1010", TypeCodeCover, "Shutter")))
	c.UpdateState(positionState(58))
	c.UpdateState(DeviceState{Valid: true, Statuses: map[string]any{}})

	if got := c.State().Position; got != 42 {
		t.Errorf("Position = %d, want 42", got)
	}
	if !c.Available() {
		t.Error("cover should be available")
	}
}

func TestCoverCanSetPosition(t *testing.T) {
	with := NewCover(capsOf(rawDevice("1", TypeCodeCover, "a", RawCapability{Name: CapGotoPosition})))
	without := NewCover(capsOf(rawDevice("2", TypeCodeCover, "b")))

	if !with.CanSetPosition {
		t.Error("cover with GOTO_POS_CMD should set position")
	}
	if without.CanSetPosition {
		t.Error("cover without GOTO_POS_CMD should not set position")
	}
}

func ventilatedCover() *Cover {
	return NewCover(capsOf(rawDevice("1012", TypeCodeCover, "Kitchen window",
		RawCapability{Name: CapGotoPosition},
		RawCapability{Name: CapVentilationPos, Value: "80"},
		RawCapability{Name: CapVentilationMode, Value: "true"},
	)))
}

func TestCoverVentilationFromCapabilities(t *testing.T) {
	c := ventilatedCover()
	if !c.HasVentilationPosition {
		t.Fatal("cover with VENTIL_POS_CFG should report ventilation")
	}
	st := c.State()
	if st.VentilationPosition != 20 {
		t.Errorf("VentilationPosition = %d, want 20", st.VentilationPosition)
	}
	if !st.VentilationMode {
		t.Error("VentilationMode should be true")
	}

	m := c.StateMap()
	if m["ventilation_position"] != 20 || m["ventilation_mode"] != true {
		t.Errorf("StateMap() = %v", m)
	}

	plain := NewCover(capsOf(rawDevice("1010", TypeCodeCover, "Shutter")))
	if _, ok := plain.StateMap()["ventilation_position"]; ok {
		t.Error("cover without ventilation should not report it")
	}
}

func TestCoverVentilationFromReadings(t *testing.T) {
	c := ventilatedCover()
	c.UpdateState(DeviceState{
		Valid:    true,
		Format:   FormatReadings,
		Statuses: map[string]any{statusPosition: 58.0},
		Readings: map[string]any{CapVentilationPos: "70", CapVentilationMode: false},
	})

	st := c.State()
	if st.Position != 42 {
		t.Errorf("Position = %d, want 42", st.Position)
	}
	if st.VentilationPosition != 30 || st.VentilationMode {
		t.Errorf("ventilation = %d/%v, want 30/false", st.VentilationPosition, st.VentilationMode)
	}

	// A position-only entry leaves the ventilation settings alone.
	c.UpdateState(positionState(0))
	if st := c.State(); st.Position != 100 || st.VentilationPosition != 30 {
		t.Errorf("state = %+v, want position 100 and ventilation 30", st)
	}
}

func TestSwitchUpdateState(t *testing.T) {
	s := NewSwitch(capsOf(rawDevice("2020", TypeCodeActuator, "Socket")))

	s.UpdateState(positionState(100))
	if !s.State().On {
		t.Error("Position 100 should be on")
	}
	s.UpdateState(positionState(0))
	if s.State().On {
		t.Error("Position 0 should be off")
	}
	if got := s.StateMap()["on"]; got != false {
		t.Errorf("StateMap()[on] = %v", got)
	}
}

func TestSensorFeaturesFixedAtBuild(t *testing.T) {
	s := NewSensor(capsOf(rawDevice("3030", TypeCodeSensor, "Weather",
		RawCapability{Name: CapTemperature, Value: nil},
		RawCapability{Name: CapRainDetection},
	)))

	f := s.Features()
	if !f.Temperature || !f.RainDetection {
		t.Errorf("features = %+v, want temperature and rain", f)
	}
	if f.WindSpeed || f.Brightness || f.ContactState {
		t.Errorf("features = %+v, unexpected extras", f)
	}

	// Readings for unsupported features are ignored.
	s.UpdateState(DeviceState{
		Valid:  true,
		Format: FormatReadings,
		Readings: map[string]any{
			readingTemperature: 21.5,
			readingRain:        "true",
			readingWindSpeed:   3.2,
		},
	})

	st := s.State()
	if st.Temperature == nil || *st.Temperature != 21.5 {
		t.Errorf("Temperature = %v, want 21.5", st.Temperature)
	}
	if st.Rain == nil || !*st.Rain {
		t.Errorf("Rain = %v, want true", st.Rain)
	}
	if st.WindSpeed != nil {
		t.Error("WindSpeed should stay nil for a sensor without the feature")
	}
}

func TestSensorContactState(t *testing.T) {
	tests := []struct {
		reading string
		want    ContactState
	}{
		{"closed", ContactClosed},
		{"tilted", ContactTilted},
		{"open", ContactOpen},
		{"anything", ContactOpen},
	}

	for _, tt := range tests {
		t.Run(tt.reading, func(t *testing.T) {
			s := NewSensor(capsOf(rawDevice("3031", TypeCodeSensor, "Window",
				RawCapability{Name: CapCloseContact},
			)))
			s.UpdateState(DeviceState{
				Valid:    true,
				Readings: map[string]any{readingContact: tt.reading},
			})
			got := s.State().Contact
			if got == nil || *got != tt.want {
				t.Errorf("Contact = %v, want %q", got, tt.want)
			}
			if s.StateMap()["contact"] != string(tt.want) {
				t.Errorf("StateMap()[contact] = %v", s.StateMap()["contact"])
			}
		})
	}
}

func TestSensorBattery(t *testing.T) {
	s := NewSensor(capsOf(rawDevice("3032", TypeCodeSensor, "Smoke",
		RawCapability{Name: CapBattery},
	)))
	level := 87.0
	s.UpdateState(DeviceState{Valid: true, Battery: &level})

	if got := s.StateMap()["battery"]; got != 87.0 {
		t.Errorf("battery = %v, want 87", got)
	}
}

func TestThermostatTargetRangeFromCapability(t *testing.T) {
	th := NewThermostat(capsOf(rawDevice("5050", TypeCodeThermostat, "Bath",
		RawCapability{Name: CapTargetTemp, MinValue: "5.0", MaxValue: 30.0, StepSize: "0.5"},
	)))

	want := TemperatureRange{Min: 5, Max: 30, Step: 0.5}
	if th.TargetRange != want {
		t.Errorf("TargetRange = %+v, want %+v", th.TargetRange, want)
	}
}

func TestThermostatDefaultRange(t *testing.T) {
	th := NewThermostat(capsOf(rawDevice("5050", TypeCodeThermostat, "Bath",
		RawCapability{Name: CapTargetTemp},
	)))

	want := TemperatureRange{Min: 4, Max: 28, Step: 0.5}
	if th.TargetRange != want {
		t.Errorf("TargetRange = %+v, want %+v", th.TargetRange, want)
	}
}

func TestThermostatReadings(t *testing.T) {
	th := NewThermostat(capsOf(rawDevice("5050", TypeCodeThermostat, "Bath",
		RawCapability{Name: CapTemperature},
		RawCapability{Name: CapTargetTemp},
		RawCapability{Name: CapAutoMode},
		RawCapability{Name: CapThreshold(2)},
	)))

	th.UpdateState(DeviceState{
		Valid:  true,
		Format: FormatReadings,
		Readings: map[string]any{
			readingTemperature:  "20.5",
			readingTargetTemp:   21.0,
			readingAutoMode:     false,
			thresholdReading(2): 18.0,
		},
	})

	st := th.State()
	if st.Temperature == nil || *st.Temperature != 20.5 {
		t.Errorf("Temperature = %v", st.Temperature)
	}
	if st.TargetTemperature == nil || *st.TargetTemperature != 21 {
		t.Errorf("TargetTemperature = %v", st.TargetTemperature)
	}
	if st.AutoMode == nil || *st.AutoMode {
		t.Errorf("AutoMode = %v, want false", st.AutoMode)
	}
	if st.Thresholds[1] == nil || *st.Thresholds[1] != 18 {
		t.Errorf("Thresholds[1] = %v", st.Thresholds[1])
	}
	if st.Thresholds[0] != nil {
		t.Error("unsupported threshold slot should be nil")
	}
}

func TestThermostatStatusesMapFallback(t *testing.T) {
	th := NewThermostat(capsOf(rawDevice("5051", TypeCodeThermostat, "Kitchen",
		RawCapability{Name: CapTemperature},
		RawCapability{Name: CapTargetTemp},
		RawCapability{Name: CapAutoMode},
	)))

	th.UpdateState(DeviceState{
		Valid:  true,
		Format: FormatStatusesMap,
		Statuses: map[string]any{
			statusActualTemp: 195.0,
			statusPosition:   210.0,
			statusManualMode: 0.0,
		},
		Readings: map[string]any{},
	})

	st := th.State()
	if st.Temperature == nil || *st.Temperature != 19.5 {
		t.Errorf("Temperature = %v, want 19.5", st.Temperature)
	}
	if st.TargetTemperature == nil || *st.TargetTemperature != 21 {
		t.Errorf("TargetTemperature = %v, want 21", st.TargetTemperature)
	}
	if st.AutoMode == nil || !*st.AutoMode {
		t.Errorf("AutoMode = %v, want true", st.AutoMode)
	}
}

func TestLightUpdateState(t *testing.T) {
	l := NewLight(capsOf(rawDevice("2021", TypeCodeActuator, "Hall",
		RawCapability{Name: CapGotoPosition},
		RawCapability{Name: CapRGB},
		RawCapability{Name: CapColorTemp},
		RawCapability{Name: CapColorMode},
	)))

	l.UpdateState(DeviceState{
		Valid: true,
		Statuses: map[string]any{
			statusPosition:  60.0,
			statusRGB:       "0xFF8000",
			statusColorTemp: 370.0,
			statusColorMode: "rgb",
		},
	})

	st := l.State()
	if !st.On || st.Brightness != 60 {
		t.Errorf("On/Brightness = %v/%d", st.On, st.Brightness)
	}
	if st.RGB == nil || *st.RGB != (RGB{R: 0xFF, G: 0x80, B: 0}) {
		t.Errorf("RGB = %v", st.RGB)
	}
	if st.ColorTemp == nil || *st.ColorTemp != 370 {
		t.Errorf("ColorTemp = %v", st.ColorTemp)
	}
	if st.ColorMode != "rgb" {
		t.Errorf("ColorMode = %q", st.ColorMode)
	}
	if got := l.StateMap()["rgb"]; got != "0xFF8000" {
		t.Errorf("StateMap()[rgb] = %v", got)
	}
}

func TestRGBParsing(t *testing.T) {
	tests := []struct {
		in   any
		want RGB
		ok   bool
	}{
		{"0x102030", RGB{0x10, 0x20, 0x30}, true},
		{"#A0B0C0", RGB{0xA0, 0xB0, 0xC0}, true},
		{"ffffff", RGB{0xFF, 0xFF, 0xFF}, true},
		{float64(0x010203), RGB{1, 2, 3}, true},
		{"not a colour", RGB{}, false},
		{"0x1000000", RGB{}, false},
	}

	for _, tt := range tests {
		got, ok := parseRGB(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseRGB(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	if hex := (RGB{R: 1, G: 2, B: 255}).Hex(); hex != "0x0102FF" {
		t.Errorf("Hex() = %q", hex)
	}
}

func TestMiredKelvin(t *testing.T) {
	if got := MiredToKelvin(250); got != 4000 {
		t.Errorf("MiredToKelvin(250) = %d", got)
	}
	if got := KelvinToMired(2700); got != 370 {
		t.Errorf("KelvinToMired(2700) = %d", got)
	}
	if got := MiredToKelvin(0); got != 0 {
		t.Errorf("MiredToKelvin(0) = %d", got)
	}
}

func TestHubUnavailableWithoutHubData(t *testing.T) {
	h := NewHub(HubCapabilities("bridge", FirmwareVersion{Version: "5.5"}))
	h.UpdateState(hubState(FirmwareStatus{}, FirmwareVersion{}, LEDStatus{Status: "enabled"}))
	if !h.Available() {
		t.Fatal("hub should be available")
	}
	if h.State().FirmwareVersion != "5.5" {
		t.Errorf("FirmwareVersion = %q, want identity fallback", h.State().FirmwareVersion)
	}

	h.UpdateState(DeviceState{Valid: true})
	if h.Available() {
		t.Error("hub without hub data should be unavailable")
	}
}

func TestHubDownloadProgress(t *testing.T) {
	h := NewHub(HubCapabilities("bridge", FirmwareVersion{Version: "5.5"}))
	h.UpdateState(hubState(
		FirmwareStatus{Status: "DOWNLOADING", DownloadProgress: "40"},
		FirmwareVersion{Version: "5.5"},
		LEDStatus{},
	))
	p := h.State().DownloadProgress
	if p == nil || *p != 40 {
		t.Errorf("DownloadProgress = %v, want 40", p)
	}
}

func TestStateMapIsJSONSerialisable(t *testing.T) {
	m := buildTestManager(t, newTestHouse(), ManagerOptions{})
	for id, d := range m.Devices() {
		if _, err := json.Marshal(d.StateMap()); err != nil {
			t.Errorf("device %s StateMap() not serialisable: %v", id, err)
		}
		if _, ok := d.StateMap()["available"]; !ok {
			t.Errorf("device %s StateMap() missing available", id)
		}
	}
}

func TestModelNameUnknownCode(t *testing.T) {
	if got := ModelName("00000000"); got != GenericModel {
		t.Errorf("ModelName() = %q, want %q", got, GenericModel)
	}
}
