package homepilot

// CoverState is the observed state of a cover.
type CoverState struct {
	// Position is 0 (closed) to 100 (open).
	Position int  `json:"position"`
	Opening  bool `json:"opening"`
	Closing  bool `json:"closing"`

	// VentilationPosition is the configured ventilation stop, 0 (closed)
	// to 100 (open). Only meaningful when the cover has the capability.
	VentilationPosition int  `json:"ventilation_position"`
	VentilationMode     bool `json:"ventilation_mode"`
}

// Closed reports whether the cover is fully closed.
func (s CoverState) Closed() bool {
	return s.Position == 0
}

// Cover is a motorised shutter, blind or awning.
type Cover struct {
	base

	// CanSetPosition is true when the device accepts GOTO_POS_CMD.
	CanSetPosition bool

	// HasVentilationPosition is true when the device exposes VENTIL_POS_CFG.
	HasVentilationPosition bool

	state CoverState
}

// NewCover builds a cover from its capability map. The ventilation
// settings are configuration, so their initial values come from the
// capabilities rather than the bulk state.
func NewCover(caps CapabilityMap) *Cover {
	c := &Cover{
		base:                   base{identity: identityFromCapabilities(caps)},
		CanSetPosition:         caps.Has(CapGotoPosition),
		HasVentilationPosition: caps.Has(CapVentilationPos),
	}
	if wire, ok := caps.Float(CapVentilationPos); ok {
		c.state.VentilationPosition = readPosition(roundPercent(wire))
	}
	if on, ok := caps.Bool(CapVentilationMode); ok {
		c.state.VentilationMode = on
	}
	return c
}

func (c *Cover) Kind() Kind { return KindCover }

// State returns the last observed state.
func (c *Cover) State() CoverState { return c.state }

// UpdateState reads the wire position. The bridge does not report motion,
// so opening and closing are always false. Ventilation settings change
// only when the entry carries them as readings.
func (c *Cover) UpdateState(s DeviceState) {
	c.available = s.Valid
	next := c.state
	if wire, ok := s.Status(statusPosition); ok {
		next.Position = readPosition(roundPercent(wire))
	}
	if c.HasVentilationPosition {
		if wire := s.ReadingFloat(CapVentilationPos); wire != nil {
			next.VentilationPosition = readPosition(roundPercent(*wire))
		}
		if on := s.ReadingBool(CapVentilationMode); on != nil {
			next.VentilationMode = *on
		}
	}
	c.state = next
}

func (c *Cover) StateMap() map[string]any {
	m := c.stateMap()
	m["position"] = c.state.Position
	m["closed"] = c.state.Closed()
	m["opening"] = c.state.Opening
	m["closing"] = c.state.Closing
	if c.HasVentilationPosition {
		m["ventilation_position"] = c.state.VentilationPosition
		m["ventilation_mode"] = c.state.VentilationMode
	}
	return m
}

func (c *Cover) Clone() Device {
	cp := *c
	return &cp
}
