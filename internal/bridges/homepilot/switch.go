package homepilot

// SwitchState is the observed state of a switch actuator.
type SwitchState struct {
	On bool `json:"on"`
}

// Switch is an on/off actuator.
type Switch struct {
	base
	state SwitchState
}

// NewSwitch builds a switch from its capability map.
func NewSwitch(caps CapabilityMap) *Switch {
	return &Switch{base: base{identity: identityFromCapabilities(caps)}}
}

func (s *Switch) Kind() Kind { return KindSwitch }

// State returns the last observed state.
func (s *Switch) State() SwitchState { return s.state }

func (s *Switch) UpdateState(st DeviceState) {
	s.available = st.Valid
	if pos, ok := st.Status(statusPosition); ok {
		s.state = SwitchState{On: pos != 0}
	}
}

func (s *Switch) StateMap() map[string]any {
	m := s.stateMap()
	m["on"] = s.state.On
	return m
}

func (s *Switch) Clone() Device {
	cp := *s
	return &cp
}
