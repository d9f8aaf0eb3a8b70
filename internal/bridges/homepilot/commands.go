package homepilot

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Command names accepted by PUT /devices/{id}.
const (
	CmdPositionUp   = "POS_UP_CMD"
	CmdPositionDown = "POS_DOWN_CMD"
	CmdStop         = "STOP_CMD"
	CmdGotoPosition = "GOTO_POS_CMD"
	CmdTurnOn       = "TURN_ON_CMD"
	CmdTurnOff      = "TURN_OFF_CMD"
	CmdPing         = "PING_CMD"
)

// Action is a command name accepted by Execute.
type Action string

// Supported actions.
const (
	ActionOpen           Action = "open"
	ActionClose          Action = "close"
	ActionStop           Action = "stop"
	ActionSetPosition    Action = "set_position"
	ActionTurnOn         Action = "turn_on"
	ActionTurnOff        Action = "turn_off"
	ActionToggle         Action = "toggle"
	ActionPing           Action = "ping"
	ActionSetTemperature Action = "set_temperature"
	ActionSetAutoMode    Action = "set_auto_mode"
	ActionSetThreshold   Action = "set_threshold"
	ActionSetBrightness  Action = "set_brightness"
	ActionSetRGB         Action = "set_rgb"
	ActionSetColorTemp   Action = "set_color_temp"
	ActionSetLED         Action = "set_led"
	ActionSetAutoUpdate  Action = "set_auto_update"
	ActionInstallUpdate  Action = "install_update"

	ActionSetVentilationPosition Action = "set_ventilation_position"
	ActionSetVentilationMode     Action = "set_ventilation_mode"
	ActionExecuteScene           Action = "execute_scene"
)

// Command is a request to act on one device.
type Command struct {
	DeviceID   string         `json:"device_id"`
	Action     Action         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Execute runs a command by action name. Parameters depend on the action:
//   - set_position, set_brightness: "position" / "brightness" (0-100)
//   - set_temperature: "temperature"
//   - set_auto_mode, set_led, set_auto_update: "enabled"
//   - set_threshold: "slot" (1-4), "temperature"
//   - set_rgb: "rgb" ("#RRGGBB") or "r", "g", "b"
//   - set_color_temp: "mired" or "kelvin"
//   - set_ventilation_position: "position" (0-100)
//   - set_ventilation_mode: "enabled"
//   - execute_scene: "scene_id", sent to the hub
func (m *Manager) Execute(ctx context.Context, cmd Command) error {
	p := cmd.Parameters
	id := cmd.DeviceID

	switch cmd.Action {
	case ActionOpen:
		return m.OpenCover(ctx, id)
	case ActionClose:
		return m.CloseCover(ctx, id)
	case ActionStop:
		return m.StopCover(ctx, id)
	case ActionSetPosition:
		pos, err := paramInt(p, "position")
		if err != nil {
			return err
		}
		return m.SetCoverPosition(ctx, id, pos)
	case ActionTurnOn:
		return m.TurnOn(ctx, id)
	case ActionTurnOff:
		return m.TurnOff(ctx, id)
	case ActionToggle:
		return m.Toggle(ctx, id)
	case ActionPing:
		return m.Ping(ctx, id)
	case ActionSetTemperature:
		t, err := paramFloat(p, "temperature")
		if err != nil {
			return err
		}
		return m.SetTargetTemperature(ctx, id, t)
	case ActionSetAutoMode:
		on, err := paramBool(p, "enabled")
		if err != nil {
			return err
		}
		return m.SetAutoMode(ctx, id, on)
	case ActionSetThreshold:
		slot, err := paramInt(p, "slot")
		if err != nil {
			return err
		}
		t, err := paramFloat(p, "temperature")
		if err != nil {
			return err
		}
		return m.SetThreshold(ctx, id, slot, t)
	case ActionSetBrightness:
		b, err := paramInt(p, "brightness")
		if err != nil {
			return err
		}
		return m.SetBrightness(ctx, id, b)
	case ActionSetRGB:
		c, err := paramRGB(p)
		if err != nil {
			return err
		}
		return m.SetRGB(ctx, id, c)
	case ActionSetColorTemp:
		mired, err := paramMired(p)
		if err != nil {
			return err
		}
		return m.SetColorTemp(ctx, id, mired)
	case ActionSetLED:
		on, err := paramBool(p, "enabled")
		if err != nil {
			return err
		}
		return m.SetLED(ctx, on)
	case ActionSetAutoUpdate:
		on, err := paramBool(p, "enabled")
		if err != nil {
			return err
		}
		return m.SetAutoUpdate(ctx, on)
	case ActionInstallUpdate:
		return m.StartFirmwareUpdate(ctx)
	case ActionSetVentilationPosition:
		pos, err := paramInt(p, "position")
		if err != nil {
			return err
		}
		return m.SetVentilationPosition(ctx, id, pos)
	case ActionSetVentilationMode:
		on, err := paramBool(p, "enabled")
		if err != nil {
			return err
		}
		return m.SetVentilationMode(ctx, id, on)
	case ActionExecuteScene:
		if id != HubID {
			return fmt.Errorf("%w: scenes run on the hub, not device %s", ErrUnsupported, id)
		}
		sid, err := paramString(p, "scene_id")
		if err != nil {
			return err
		}
		return m.ExecuteScene(ctx, sid)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrUnsupported, cmd.Action)
	}
}

// OpenCover fully opens a cover.
func (m *Manager) OpenCover(ctx context.Context, id string) error {
	if _, err := m.cover(id); err != nil {
		return err
	}
	return m.send(ctx, id, CmdPositionUp, nil)
}

// CloseCover fully closes a cover.
func (m *Manager) CloseCover(ctx context.Context, id string) error {
	if _, err := m.cover(id); err != nil {
		return err
	}
	return m.send(ctx, id, CmdPositionDown, nil)
}

// StopCover halts a moving cover.
func (m *Manager) StopCover(ctx context.Context, id string) error {
	if _, err := m.cover(id); err != nil {
		return err
	}
	return m.send(ctx, id, CmdStop, nil)
}

// SetCoverPosition moves a cover to position (0 closed, 100 open).
func (m *Manager) SetCoverPosition(ctx context.Context, id string, position int) error {
	c, err := m.cover(id)
	if err != nil {
		return err
	}
	if !c.CanSetPosition {
		return fmt.Errorf("%w: device %s cannot set position", ErrUnsupported, id)
	}
	if position < 0 || position > 100 {
		return fmt.Errorf("%w: position %d out of range 0-100", ErrInvalidValue, position)
	}
	return m.send(ctx, id, CmdGotoPosition, writePosition(position))
}

// SetVentilationPosition sets the stop a cover moves to in ventilation
// mode (0 closed, 100 open).
func (m *Manager) SetVentilationPosition(ctx context.Context, id string, position int) error {
	if _, err := m.ventilated(id); err != nil {
		return err
	}
	if position < 0 || position > 100 {
		return fmt.Errorf("%w: ventilation position %d out of range 0-100", ErrInvalidValue, position)
	}
	return m.send(ctx, id, CapVentilationPos, writePosition(position))
}

// SetVentilationMode enables or disables a cover's ventilation stop.
func (m *Manager) SetVentilationMode(ctx context.Context, id string, on bool) error {
	if _, err := m.ventilated(id); err != nil {
		return err
	}
	return m.send(ctx, id, CapVentilationMode, on)
}

// TurnOn switches a switch or light on.
func (m *Manager) TurnOn(ctx context.Context, id string) error {
	if _, err := m.switchable(id); err != nil {
		return err
	}
	return m.send(ctx, id, CmdTurnOn, nil)
}

// TurnOff switches a switch or light off.
func (m *Manager) TurnOff(ctx context.Context, id string) error {
	if _, err := m.switchable(id); err != nil {
		return err
	}
	return m.send(ctx, id, CmdTurnOff, nil)
}

// Toggle inverts the last observed on state.
func (m *Manager) Toggle(ctx context.Context, id string) error {
	on, err := m.switchable(id)
	if err != nil {
		return err
	}
	if on {
		return m.send(ctx, id, CmdTurnOff, nil)
	}
	return m.send(ctx, id, CmdTurnOn, nil)
}

// Ping asks a device to identify itself.
func (m *Manager) Ping(ctx context.Context, id string) error {
	d, err := m.Device(id)
	if err != nil {
		return err
	}
	if !d.Identity().SupportsPing {
		return fmt.Errorf("%w: device %s has no ping command", ErrUnsupported, id)
	}
	return m.send(ctx, id, CmdPing, nil)
}

// SetTargetTemperature sets a thermostat's target temperature.
func (m *Manager) SetTargetTemperature(ctx context.Context, id string, celsius float64) error {
	t, err := m.thermostat(id)
	if err != nil {
		return err
	}
	if !t.HasTargetTemperature {
		return fmt.Errorf("%w: device %s has no target temperature", ErrUnsupported, id)
	}
	if math.IsNaN(celsius) || !t.TargetRange.Contains(celsius) {
		return fmt.Errorf("%w: temperature %.1f outside %.1f-%.1f", ErrInvalidValue, celsius, t.TargetRange.Min, t.TargetRange.Max)
	}
	return m.send(ctx, id, CapTargetTemp, celsius)
}

// SetAutoMode enables or disables a thermostat's schedule.
func (m *Manager) SetAutoMode(ctx context.Context, id string, on bool) error {
	t, err := m.thermostat(id)
	if err != nil {
		return err
	}
	if !t.HasAutoMode {
		return fmt.Errorf("%w: device %s has no auto mode", ErrUnsupported, id)
	}
	return m.send(ctx, id, CapAutoMode, on)
}

// SetThreshold sets temperature threshold slot (1-4).
func (m *Manager) SetThreshold(ctx context.Context, id string, slot int, celsius float64) error {
	t, err := m.thermostat(id)
	if err != nil {
		return err
	}
	if slot < 1 || slot > thresholdSlots {
		return fmt.Errorf("%w: threshold slot %d out of range 1-%d", ErrInvalidValue, slot, thresholdSlots)
	}
	if !t.HasThreshold[slot-1] {
		return fmt.Errorf("%w: device %s has no threshold %d", ErrUnsupported, id, slot)
	}
	if math.IsNaN(celsius) {
		return fmt.Errorf("%w: threshold temperature is not a number", ErrInvalidValue)
	}
	return m.send(ctx, id, CapThreshold(slot), celsius)
}

// SetBrightness dims a light to brightness (0-100).
func (m *Manager) SetBrightness(ctx context.Context, id string, brightness int) error {
	l, err := m.light(id)
	if err != nil {
		return err
	}
	if !l.Dimmable {
		return fmt.Errorf("%w: device %s is not dimmable", ErrUnsupported, id)
	}
	if brightness < 0 || brightness > 100 {
		return fmt.Errorf("%w: brightness %d out of range 0-100", ErrInvalidValue, brightness)
	}
	return m.send(ctx, id, CmdGotoPosition, brightness)
}

// SetRGB sets a colour light's colour.
func (m *Manager) SetRGB(ctx context.Context, id string, c RGB) error {
	l, err := m.light(id)
	if err != nil {
		return err
	}
	if !l.HasRGB {
		return fmt.Errorf("%w: device %s has no colour support", ErrUnsupported, id)
	}
	return m.send(ctx, id, CapRGB, c.Hex())
}

// SetColorTemp sets a light's colour temperature in mired.
func (m *Manager) SetColorTemp(ctx context.Context, id string, mired int) error {
	l, err := m.light(id)
	if err != nil {
		return err
	}
	if !l.HasColorTemp {
		return fmt.Errorf("%w: device %s has no colour temperature", ErrUnsupported, id)
	}
	if mired <= 0 {
		return fmt.Errorf("%w: colour temperature %d mired", ErrInvalidValue, mired)
	}
	return m.send(ctx, id, CapColorTemp, mired)
}

// SetLED switches the bridge LEDs.
func (m *Manager) SetLED(ctx context.Context, on bool) error {
	if _, err := m.hub(); err != nil {
		return err
	}
	if err := m.transport.SetLED(ctx, on); err != nil {
		return fmt.Errorf("setting bridge LEDs: %w", err)
	}
	return nil
}

// SetAutoUpdate toggles automatic firmware updates on the bridge.
func (m *Manager) SetAutoUpdate(ctx context.Context, on bool) error {
	if _, err := m.hub(); err != nil {
		return err
	}
	if err := m.transport.SetAutoUpdate(ctx, on); err != nil {
		return fmt.Errorf("setting auto update: %w", err)
	}
	return nil
}

// StartFirmwareUpdate installs a pending firmware update.
func (m *Manager) StartFirmwareUpdate(ctx context.Context) error {
	h, err := m.hub()
	if err != nil {
		return err
	}
	if !h.State().UpdateAvailable {
		return fmt.Errorf("%w: no firmware update available", ErrUnsupported)
	}
	if err := m.transport.StartFirmwareUpdate(ctx); err != nil {
		return fmt.Errorf("starting firmware update: %w", err)
	}
	return nil
}

// send issues a device command. The registry is not touched; state
// catches up on the next reconcile.
func (m *Manager) send(ctx context.Context, id, name string, value any) error {
	if err := m.transport.SendCommand(ctx, id, name, value); err != nil {
		return fmt.Errorf("sending %s to device %s: %w", name, id, err)
	}
	m.logDebug("command sent", "device_id", id, "command", name)
	return nil
}

func (m *Manager) cover(id string) (*Cover, error) {
	d, err := m.Device(id)
	if err != nil {
		return nil, err
	}
	c, ok := d.(*Cover)
	if !ok {
		return nil, fmt.Errorf("%w: device %s is a %s, not a cover", ErrUnsupported, id, d.Kind())
	}
	return c, nil
}

func (m *Manager) ventilated(id string) (*Cover, error) {
	c, err := m.cover(id)
	if err != nil {
		return nil, err
	}
	if !c.HasVentilationPosition {
		return nil, fmt.Errorf("%w: device %s has no ventilation position", ErrUnsupported, id)
	}
	return c, nil
}

// switchable returns the last observed on state of a switch or light.
func (m *Manager) switchable(id string) (bool, error) {
	d, err := m.Device(id)
	if err != nil {
		return false, err
	}
	switch v := d.(type) {
	case *Switch:
		return v.State().On, nil
	case *Light:
		return v.State().On, nil
	default:
		return false, fmt.Errorf("%w: device %s is a %s, not switchable", ErrUnsupported, id, d.Kind())
	}
}

func (m *Manager) thermostat(id string) (*Thermostat, error) {
	d, err := m.Device(id)
	if err != nil {
		return nil, err
	}
	t, ok := d.(*Thermostat)
	if !ok {
		return nil, fmt.Errorf("%w: device %s is a %s, not a thermostat", ErrUnsupported, id, d.Kind())
	}
	return t, nil
}

func (m *Manager) light(id string) (*Light, error) {
	d, err := m.Device(id)
	if err != nil {
		return nil, err
	}
	l, ok := d.(*Light)
	if !ok {
		return nil, fmt.Errorf("%w: device %s is a %s, not a light", ErrUnsupported, id, d.Kind())
	}
	return l, nil
}

func (m *Manager) hub() (*Hub, error) {
	d, err := m.Device(HubID)
	if err != nil {
		return nil, err
	}
	h, ok := d.(*Hub)
	if !ok {
		return nil, fmt.Errorf("%w: hub has unexpected kind %s", ErrUnsupported, d.Kind())
	}
	return h, nil
}

// Parameter helpers. Missing or malformed parameters are ErrInvalidValue.

func paramFloat(p map[string]any, key string) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: missing parameter %q", ErrInvalidValue, key)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: parameter %q is not a number", ErrInvalidValue, key)
	}
	return f, nil
}

func paramString(p map[string]any, key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: missing parameter %q", ErrInvalidValue, key)
	}
	s := formatValue(v)
	if s == "" {
		return "", fmt.Errorf("%w: parameter %q is empty", ErrInvalidValue, key)
	}
	return s, nil
}

func paramInt(p map[string]any, key string) (int, error) {
	f, err := paramFloat(p, key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: parameter %q must be a whole number", ErrInvalidValue, key)
	}
	return int(f), nil
}

func paramBool(p map[string]any, key string) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, fmt.Errorf("%w: missing parameter %q", ErrInvalidValue, key)
	}
	b, ok := toBool(v)
	if !ok {
		return false, fmt.Errorf("%w: parameter %q is not a boolean", ErrInvalidValue, key)
	}
	return b, nil
}

func paramRGB(p map[string]any) (RGB, error) {
	if v, ok := p["rgb"]; ok {
		c, ok := parseRGB(v)
		if !ok {
			return RGB{}, fmt.Errorf("%w: invalid rgb %v", ErrInvalidValue, v)
		}
		return c, nil
	}
	var parts [3]uint8
	for i, key := range []string{"r", "g", "b"} {
		n, err := paramInt(p, key)
		if err != nil {
			return RGB{}, err
		}
		if n < 0 || n > 255 {
			return RGB{}, fmt.Errorf("%w: %s=%d out of range 0-255", ErrInvalidValue, key, n)
		}
		parts[i] = uint8(n)
	}
	return RGB{R: parts[0], G: parts[1], B: parts[2]}, nil
}

func paramMired(p map[string]any) (int, error) {
	if _, ok := p["kelvin"]; ok {
		k, err := paramInt(p, "kelvin")
		if err != nil {
			return 0, err
		}
		if k <= 0 {
			return 0, fmt.Errorf("%w: kelvin %d", ErrInvalidValue, k)
		}
		return KelvinToMired(k), nil
	}
	return paramInt(p, "mired")
}

// ParseAction normalises an action name.
func ParseAction(s string) Action {
	return Action(strings.ToLower(strings.TrimSpace(s)))
}

