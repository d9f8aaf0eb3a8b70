package homepilot

// HubID is the registry ID of the hub pseudo-device.
const HubID = "-1"

// Firmware update status values.
const (
	firmwareUpdateAvailable = "UPDATE_AVAILABLE"
	firmwareDownloading     = "DOWNLOADING"
)

// hubModel is the model name reported for the bridge itself.
const hubModel = "HomePilot"

// HubState is the observed state of the bridge itself.
type HubState struct {
	FirmwareVersion  string   `json:"firmware_version"`
	UpdateAvailable  bool     `json:"update_available"`
	UpdateVersion    string   `json:"update_version,omitempty"`
	DownloadProgress *float64 `json:"download_progress,omitempty"`
	LEDEnabled       bool     `json:"led_enabled"`
	AutoUpdate       bool     `json:"auto_update"`
	ReleaseNotes     string   `json:"release_notes,omitempty"`
	Platform         string   `json:"platform,omitempty"`
}

// Hub is the pseudo-device representing the bridge.
type Hub struct {
	base
	state HubState
}

// HubCapabilities synthesises the capability map of the hub from its
// nodename and firmware description, so it builds like any other device.
func HubCapabilities(nodename string, version FirmwareVersion) CapabilityMap {
	return CapabilityMap{
		CapDeviceID:    {Value: HubID},
		CapDeviceType:  {Value: HubID},
		CapProtocolID:  {Value: "homepilot-" + nodename},
		CapName:        {Value: nodename},
		CapProductCode: {Value: hubModel},
		CapVersion:     {Value: version.Version},
	}
}

// NewHub builds the hub from its synthetic capability map.
func NewHub(caps CapabilityMap) *Hub {
	h := &Hub{base: base{identity: identityFromCapabilities(caps)}}
	h.identity.Model = hubModel
	h.state.FirmwareVersion = h.identity.FirmwareVersion
	return h
}

func (h *Hub) Kind() Kind { return KindHub }

// State returns the last observed state.
func (h *Hub) State() HubState { return h.state }

// UpdateState reads the hub trio. A state without hub data marks the
// hub unavailable.
func (h *Hub) UpdateState(s DeviceState) {
	if s.Hub == nil {
		h.available = false
		return
	}
	h.available = s.Valid

	fw := s.Hub.Firmware
	next := HubState{
		FirmwareVersion: s.Hub.Version.Version,
		UpdateAvailable: fw.Status == firmwareUpdateAvailable,
		UpdateVersion:   fw.Version,
		LEDEnabled:      s.Hub.LED.Enabled(),
		ReleaseNotes:    s.Hub.Version.ReleaseNotes,
		Platform:        s.Hub.Version.SWPlatform,
	}
	if next.FirmwareVersion == "" {
		next.FirmwareVersion = h.identity.FirmwareVersion
	}
	if fw.Status == firmwareDownloading {
		next.DownloadProgress = floatPtr(fw.DownloadProgress)
	}
	if auto, ok := toBool(fw.AutoUpdate); ok {
		next.AutoUpdate = auto
	}
	h.state = next
}

func (h *Hub) StateMap() map[string]any {
	m := h.stateMap()
	m["firmware_version"] = h.state.FirmwareVersion
	m["update_available"] = h.state.UpdateAvailable
	if h.state.UpdateVersion != "" {
		m["update_version"] = h.state.UpdateVersion
	}
	optional(m, "download_progress", h.state.DownloadProgress)
	m["led_enabled"] = h.state.LEDEnabled
	m["auto_update"] = h.state.AutoUpdate
	if h.state.Platform != "" {
		m["platform"] = h.state.Platform
	}
	return m
}

func (h *Hub) Clone() Device {
	cp := *h
	return &cp
}

// hubState wraps the hub trio as a DeviceState.
func hubState(fw FirmwareStatus, version FirmwareVersion, led LEDStatus) DeviceState {
	return DeviceState{
		Valid:  true,
		Format: FormatHub,
		Hub:    &HubStatus{Firmware: fw, Version: version, LED: led},
	}
}
