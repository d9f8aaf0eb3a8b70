package homepilot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Bridge HTTP paths.
const (
	pathRoot           = "/"
	pathPasswordSalt   = "/authentication/password_salt"
	pathLogin          = "/authentication/login"
	pathDevices        = "/devices"
	pathActuatorStates = "/v4/devices?devtype=Actuator"
	pathSensorStates   = "/v4/devices?devtype=Sensor"
	pathFirmwareStatus = "/service/system-update-image/status"
	pathFirmwareVer    = "/service/system-update-image/version"
	pathAutoUpdate     = "/service/system-update-image/auto_update"
	pathStartUpdate    = "/service/system-update-image/startupdate"
	pathNodename       = "/service/system/networkmgr/v1/nodename"
	pathLEDStatus      = "/service/system/leds/status"
	pathLEDEnable      = "/service/system/leds/enable"
	pathLEDDisable     = "/service/system/leds/disable"
	pathScenes         = "/v4/scenes"
	pathSceneActions   = "/scenes/%s/actions"
)

// Scene execution request fields.
const (
	sceneRequestExecute = "EXECUTESCENE"
	sceneTriggerManual  = "TRIGGER_SCENE_MANUALLY_EVENT"
)

// Expected "response" discriminators of the bulk state endpoints.
const (
	responseVisibleDevices = "get_visible_devices"
	responseMeters         = "get_meters"
)

// RawDevice is a device as returned by the discovery and detail endpoints.
type RawDevice struct {
	Capabilities []RawCapability `json:"capabilities"`
}

// RawCapability is one capability entry on the wire.
// Numeric bounds may arrive as numbers or quoted decimals.
type RawCapability struct {
	Name      string `json:"name"`
	Value     any    `json:"value"`
	ReadOnly  *bool  `json:"read_only"`
	Timestamp any    `json:"timestamp"`
	MinValue  any    `json:"min_value"`
	MaxValue  any    `json:"max_value"`
	StepSize  any    `json:"step_size"`
}

// FirmwareStatus is the bridge's update state.
type FirmwareStatus struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	DownloadProgress any    `json:"download_progress"`
	AutoUpdate       any    `json:"auto_update"`
}

// FirmwareVersion describes the installed firmware.
type FirmwareVersion struct {
	Version      string `json:"version"`
	ReleaseNotes string `json:"release_notes"`
	SWPlatform   string `json:"sw_platform"`
}

// LEDStatus is the state of the bridge's front LEDs.
type LEDStatus struct {
	Status string `json:"status"`
}

// Enabled reports whether the LEDs are on.
func (s LEDStatus) Enabled() bool {
	return s.Status == "enabled"
}

// envelope is the common wrapper of device endpoints.
type envelope[T any] struct {
	ErrorCode        int    `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Payload          T      `json:"payload"`
}

func (e envelope[T]) check(path string) error {
	if e.ErrorCode != 0 {
		return fmt.Errorf("%w: %s error_code %d: %s", ErrCannotConnect, path, e.ErrorCode, e.ErrorDescription)
	}
	return nil
}

// bulkStateResponse is the body of the /v4/devices endpoints.
type bulkStateResponse struct {
	Response string          `json:"response"`
	Devices  []rawStateEntry `json:"devices"`
	Meters   []rawStateEntry `json:"meters"`
}

// commandRequest is the body of PUT /devices/{id}.
type commandRequest struct {
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
}

// GetDevices lists every device the bridge knows, with capabilities.
func (c *Client) GetDevices(ctx context.Context) ([]RawDevice, error) {
	var resp envelope[struct {
		Devices []RawDevice `json:"devices"`
	}]
	if err := c.getJSON(ctx, pathDevices, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(pathDevices); err != nil {
		return nil, err
	}
	return resp.Payload.Devices, nil
}

// GetDevice fetches the full capability list of one device.
func (c *Client) GetDevice(ctx context.Context, id string) (RawDevice, error) {
	path := pathDevices + "/" + url.PathEscape(id)
	var resp envelope[struct {
		Device RawDevice `json:"device"`
	}]
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return RawDevice{}, err
	}
	if err := resp.check(path); err != nil {
		return RawDevice{}, err
	}
	return resp.Payload.Device, nil
}

// GetDevicesState fetches the current state of all actuators and sensors
// and merges them into one map keyed by device ID.
func (c *Client) GetDevicesState(ctx context.Context) (map[string]DeviceState, error) {
	states := make(map[string]DeviceState)

	var actuators bulkStateResponse
	if err := c.getJSON(ctx, pathActuatorStates, &actuators); err != nil {
		return nil, err
	}
	if actuators.Response != responseVisibleDevices {
		return nil, fmt.Errorf("%w: %s: unexpected response %q", ErrCannotConnect, pathActuatorStates, actuators.Response)
	}
	for _, entry := range actuators.Devices {
		if id := formatValue(entry.DID); id != "" {
			states[id] = decodeState(entry)
		}
	}

	var sensors bulkStateResponse
	if err := c.getJSON(ctx, pathSensorStates, &sensors); err != nil {
		return nil, err
	}
	if sensors.Response != responseMeters {
		return nil, fmt.Errorf("%w: %s: unexpected response %q", ErrCannotConnect, pathSensorStates, sensors.Response)
	}
	for _, entry := range sensors.Meters {
		if id := formatValue(entry.DID); id != "" {
			states[id] = decodeState(entry)
		}
	}

	return states, nil
}

// GetFirmwareStatus returns the bridge's update state.
func (c *Client) GetFirmwareStatus(ctx context.Context) (FirmwareStatus, error) {
	var status FirmwareStatus
	err := c.getJSON(ctx, pathFirmwareStatus, &status)
	return status, err
}

// GetFirmwareVersion returns the installed firmware description.
func (c *Client) GetFirmwareVersion(ctx context.Context) (FirmwareVersion, error) {
	var version FirmwareVersion
	err := c.getJSON(ctx, pathFirmwareVer, &version)
	return version, err
}

// GetNodename returns the bridge's network name.
func (c *Client) GetNodename(ctx context.Context) (string, error) {
	var resp struct {
		Nodename string `json:"nodename"`
	}
	if err := c.getJSON(ctx, pathNodename, &resp); err != nil {
		return "", err
	}
	return resp.Nodename, nil
}

// GetLEDStatus returns the state of the bridge LEDs.
func (c *Client) GetLEDStatus(ctx context.Context) (LEDStatus, error) {
	var status LEDStatus
	err := c.getJSON(ctx, pathLEDStatus, &status)
	return status, err
}

// SendCommand issues a named command to a device. value may be nil for
// commands without an argument.
func (c *Client) SendCommand(ctx context.Context, id, name string, value any) error {
	path := pathDevices + "/" + url.PathEscape(id)
	body, err := c.do(ctx, http.MethodPut, path, commandRequest{Name: name, Value: value})
	if err != nil {
		return err
	}
	return checkCommandResult(path, body)
}

// SetLED switches the bridge LEDs on or off.
func (c *Client) SetLED(ctx context.Context, on bool) error {
	path := pathLEDDisable
	if on {
		path = pathLEDEnable
	}
	_, err := c.do(ctx, http.MethodPost, path, nil)
	return err
}

// SetAutoUpdate enables or disables automatic firmware updates.
func (c *Client) SetAutoUpdate(ctx context.Context, on bool) error {
	_, err := c.do(ctx, http.MethodPut, pathAutoUpdate, map[string]bool{"auto_update": on})
	return err
}

// StartFirmwareUpdate asks the bridge to install the pending firmware.
func (c *Client) StartFirmwareUpdate(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, pathStartUpdate, nil)
	return err
}

// GetScenes lists the scenes stored on the bridge.
func (c *Client) GetScenes(ctx context.Context) ([]RawScene, error) {
	var resp struct {
		ErrorCode int        `json:"error_code"`
		Scenes    []RawScene `json:"scenes"`
	}
	if err := c.getJSON(ctx, pathScenes, &resp); err != nil {
		return nil, err
	}
	if resp.ErrorCode != 0 {
		return nil, fmt.Errorf("%w: %s error_code %d", ErrCannotConnect, pathScenes, resp.ErrorCode)
	}
	return resp.Scenes, nil
}

// ExecuteScene runs a scene as if triggered from the bridge UI.
func (c *Client) ExecuteScene(ctx context.Context, id string) error {
	path := fmt.Sprintf(pathSceneActions, url.PathEscape(id))
	body, err := c.do(ctx, http.MethodPost, path, map[string]string{
		"request_type":  sceneRequestExecute,
		"trigger_event": sceneTriggerManual,
	})
	if err != nil {
		return err
	}
	return checkCommandResult(path, body)
}

// checkCommandResult inspects an optional error envelope in a command
// response. Empty bodies are accepted.
func checkCommandResult(path string, body []byte) error {
	if len(body) == 0 {
		return nil
	}
	var resp envelope[any]
	if err := json.Unmarshal(body, &resp); err != nil {
		// Some firmware answers commands with plain text.
		return nil //nolint:nilerr // non-JSON acknowledgement is success
	}
	return resp.check(path)
}
