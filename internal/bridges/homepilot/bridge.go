package homepilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/homepilot-core/internal/history"
)

// Bridge operation constants.
const (
	// commandTimeout bounds one command round trip to the bridge.
	commandTimeout = 5 * time.Second

	// defaultSettleDelay is how long after a command the state is re-read.
	defaultSettleDelay = 5 * time.Second

	// recordTimeout bounds one history write.
	recordTimeout = 2 * time.Second
)

// BroadcastChannel is the WebSocket channel for state changes.
const BroadcastChannel = "device.state_changed"

// Bridge orchestrates the device registry, the poller and the outer
// surfaces. It handles:
//   - Publishing changed device states to MQTT after every reconcile
//   - Receiving commands via MQTT and acknowledging them
//   - Writing telemetry, recording history and broadcasting state
//   - Health reporting and graceful shutdown
//
// Every outer surface is optional; a Bridge with only a Manager still
// polls and serves Refresh and ExecuteCommand.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	id          string
	version     string
	manager     *Manager
	auth        Authenticator
	mqtt        MQTTClient
	metrics     MetricsWriter
	history     HistoryRecorder
	broadcaster StateBroadcaster
	poller      *Poller
	health      *HealthReporter
	settleDelay time.Duration

	// Last published state per device, as JSON
	stateCache   map[string]string
	stateCacheMu sync.Mutex

	statesPublished  atomic.Uint64
	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64

	// Shutdown coordination
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// Unsubscribe drops a subscription made with Subscribe.
	Unsubscribe(topic string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// MetricsWriter receives numeric state fields for time-series storage.
// Implementations must not block; writes are expected to be batched.
type MetricsWriter interface {
	WriteDeviceState(deviceID, kind string, fields map[string]any)
}

// HistoryRecorder persists the audit trail.
// This interface is satisfied by *history.SQLiteRepository.
type HistoryRecorder interface {
	RecordStateChange(ctx context.Context, deviceID string, state map[string]any, source string) error
	RecordCommand(ctx context.Context, entry history.CommandEntry) error
}

// StateBroadcaster pushes state changes to live clients.
// This interface is satisfied by *api.Hub.
type StateBroadcaster interface {
	Broadcast(channel string, payload any)
}

// Authenticator owns the bridge credentials. *Client implements it.
type Authenticator interface {
	SetPassword(password string)
	Login(ctx context.Context) error
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// BridgeID identifies this bridge in health messages.
	BridgeID string

	// Version is the software version reported in health messages.
	Version string

	// Manager is the built device registry. Required.
	Manager *Manager

	// Authenticator enables Reauthenticate. Optional.
	Authenticator Authenticator

	// MQTTClient publishes state and receives commands. Optional.
	MQTTClient MQTTClient

	// Metrics receives numeric state fields each cycle. Optional.
	Metrics MetricsWriter

	// History records state changes and commands. Optional.
	History HistoryRecorder

	// Broadcaster pushes state changes to WebSocket clients. Optional.
	Broadcaster StateBroadcaster

	// PollInterval, PollTimeout and InitialDelay configure the poller.
	PollInterval time.Duration
	PollTimeout  time.Duration
	InitialDelay time.Duration

	// SettleDelay is the wait between a command and the refresh that
	// observes its effect. Default: 5 seconds.
	SettleDelay time.Duration

	// HealthInterval is how often health is published. Default: 30 seconds.
	HealthInterval time.Duration

	// Logger is optional structured logger.
	Logger Logger
}

// BridgeStatus summarises the bridge for the API.
type BridgeStatus struct {
	BridgeID       string           `json:"bridge_id"`
	Version        string           `json:"version"`
	Status         HealthStatus     `json:"status"`
	Reason         string           `json:"reason,omitempty"`
	Polling        PollStatus       `json:"polling"`
	Statistics     BridgeStatistics `json:"statistics"`
	DevicesManaged int              `json:"devices_managed"`
	LastReconcile  *time.Time       `json:"last_reconcile,omitempty"`
	MQTTConnected  bool             `json:"mqtt_connected"`
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}

	settle := opts.SettleDelay
	if settle <= 0 {
		settle = defaultSettleDelay
	}

	// Create bridge-level context for command cancellation on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		id:          opts.BridgeID,
		version:     opts.Version,
		manager:     opts.Manager,
		auth:        opts.Authenticator,
		mqtt:        opts.MQTTClient,
		metrics:     opts.Metrics,
		history:     opts.History,
		broadcaster: opts.Broadcaster,
		settleDelay: settle,
		stateCache:  make(map[string]string),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
		logger:      opts.Logger,
	}

	b.poller = NewPoller(opts.Manager, PollerOptions{
		Interval:     opts.PollInterval,
		Timeout:      opts.PollTimeout,
		InitialDelay: opts.InitialDelay,
		OnUpdate:     b.handleUpdate,
		OnError:      b.handleError,
		OnAuthFailed: b.handleAuthFailed,
		Logger:       opts.Logger,
	})

	var publisher HealthPublisher
	if opts.MQTTClient != nil {
		publisher = opts.MQTTClient
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: publisher,
		Source:    b,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation.
// This subscribes to command topics, publishes the current registry
// and starts polling and health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if b.mqtt != nil {
		if err := b.health.PublishStarting(); err != nil {
			b.logError("failed to publish starting status", err)
		}

		commandTopic := CommandSubscribeTopic()
		if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
			return fmt.Errorf("subscribe to commands: %w", err)
		}
		b.logInfo("subscribed to commands", "topic", commandTopic)
	}

	// Publish what Build discovered so retained topics exist before the
	// first cycle.
	b.publishDevices(b.manager.Devices(), history.SourcePoll)

	b.poller.Start(ctx)
	b.health.Start(ctx)

	b.logInfo("bridge started",
		"bridge_id", b.id,
		"devices", b.manager.Count())

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		// Cancel bridge context to abort in-flight commands
		b.ctxCancel()

		// No new commands once shutdown starts.
		if b.mqtt != nil {
			if err := b.mqtt.Unsubscribe(CommandSubscribeTopic()); err != nil {
				b.logError("failed to unsubscribe from commands", err)
			}
		}

		b.poller.Stop()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		b.logInfo("bridge stopped")
	})
}

// Manager returns the device registry.
func (b *Bridge) Manager() *Manager {
	return b.manager
}

// Devices returns copies of all devices.
func (b *Bridge) Devices() map[string]Device {
	return b.manager.Devices()
}

// Device returns a copy of one device.
func (b *Bridge) Device(id string) (Device, error) {
	return b.manager.Device(id)
}

// Scenes returns the bridge's scenes.
func (b *Bridge) Scenes() []Scene {
	return b.manager.Scenes()
}

// Refresh runs one reconcile cycle now and publishes the result.
// It queues behind a cycle already in flight.
func (b *Bridge) Refresh(ctx context.Context) error {
	return b.poller.PollOnce(ctx)
}

// ExecuteCommand runs a command and returns its acknowledgment.
// The returned error is the execution failure, if any; the ack carries
// the same failure as an error code.
//
// Parameters:
//   - ctx: Context for cancellation; bounded by the command timeout
//   - cmd: Command to execute; ID and Timestamp are filled in when empty
//
// Returns:
//   - AckMessage: accepted, or failed with code and message
//   - error: nil when the bridge accepted the command
func (b *Bridge) ExecuteCommand(ctx context.Context, cmd CommandMessage) (AckMessage, error) {
	b.commandsReceived.Add(1)

	if cmd.ID == "" {
		cmd.ID = NewCommandID()
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
		"source", cmd.Source)

	var (
		ack AckMessage
		err error
	)
	action := ParseAction(cmd.Command)
	switch {
	case action == "":
		err = errors.New("command is required")
		ack = NewAckError(cmd, ErrCodeInvalidCommand, err.Error())
	case cmd.DeviceID == "":
		err = errors.New("device_id is required")
		ack = NewAckError(cmd, ErrCodeInvalidCommand, err.Error())
	default:
		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		err = b.manager.Execute(cmdCtx, Command{
			DeviceID:   cmd.DeviceID,
			Action:     action,
			Parameters: cmd.Parameters,
		})
		cancel()
		if err != nil {
			ack = NewAckError(cmd, ErrorCode(err), err.Error())
		} else {
			ack = NewAckMessage(cmd, AckAccepted)
		}
	}

	if err != nil {
		b.commandsFailed.Add(1)
		b.logError("command failed", err)
	} else {
		// State changes take a moment on the radio side.
		b.poller.ScheduleRefresh(b.settleDelay)
	}

	b.recordCommand(cmd, ack)
	return ack, err
}

// Reauthenticate swaps the bridge password, rebuilds the registry and
// resumes polling. An empty password is valid for bridges without one.
func (b *Bridge) Reauthenticate(ctx context.Context, password string) error {
	if b.auth == nil {
		return fmt.Errorf("%w: no authenticator configured", ErrUnsupported)
	}

	b.auth.SetPassword(password)
	if password != "" {
		if err := b.auth.Login(ctx); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	if err := b.manager.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild registry: %w", err)
	}
	b.pruneStateCache()

	b.poller.Resume()
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}

	b.logInfo("bridge reauthenticated", "devices", b.manager.Count())
	return nil
}

// Status returns the bridge summary.
func (b *Bridge) Status() BridgeStatus {
	status, reason := b.health.Evaluate()
	return BridgeStatus{
		BridgeID:       b.id,
		Version:        b.version,
		Status:         status,
		Reason:         reason,
		Polling:        b.poller.Status(),
		Statistics:     b.Statistics(),
		DevicesManaged: b.manager.Count(),
		LastReconcile:  timePtr(b.manager.LastReconcile()),
		MQTTConnected:  b.mqtt != nil && b.mqtt.IsConnected(),
	}
}

// PollStatus implements HealthSource.
func (b *Bridge) PollStatus() PollStatus {
	return b.poller.Status()
}

// DeviceCount implements HealthSource.
func (b *Bridge) DeviceCount() int {
	return b.manager.Count()
}

// Statistics implements HealthSource.
func (b *Bridge) Statistics() BridgeStatistics {
	return BridgeStatistics{
		StatesPublished:  b.statesPublished.Load(),
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
	}
}

// handleMQTTMessage executes a command received on homepilot/command/{id}
// and publishes the acknowledgment.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	topicDevice := deviceIDFromTopic(topic)
	if topicDevice == "" {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		b.commandsReceived.Add(1)
		b.commandsFailed.Add(1)
		b.publishAck(NewAckError(CommandMessage{DeviceID: topicDevice},
			ErrCodeInvalidCommand, "malformed command payload"))
		return
	}
	switch cmd.DeviceID {
	case "":
		cmd.DeviceID = topicDevice
	case topicDevice:
	default:
		// The topic decides the target.
		b.logError("command device does not match topic",
			fmt.Errorf("payload device %s on topic %s", cmd.DeviceID, topic))
		b.commandsReceived.Add(1)
		b.commandsFailed.Add(1)
		b.publishAck(NewAckError(CommandMessage{ID: cmd.ID, DeviceID: topicDevice},
			ErrCodeInvalidCommand, "device_id does not match topic"))
		return
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}

	// Derive from bridge context so commands are cancelled on shutdown
	ack, _ := b.ExecuteCommand(b.ctx, cmd) //nolint:errcheck // failure is carried by the ack
	b.publishAck(ack)
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(ack AckMessage) {
	if b.mqtt == nil {
		return
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	if err := b.mqtt.Publish(AckTopic(ack.DeviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

func (b *Bridge) handleUpdate(devices map[string]Device) {
	b.publishDevices(devices, history.SourcePoll)
}

// handleError publishes the registry after a failed cycle so consumers
// see devices go unavailable.
func (b *Bridge) handleError(error) {
	b.publishDevices(b.manager.Devices(), history.SourcePoll)
}

func (b *Bridge) handleAuthFailed(err error) {
	b.logError("bridge rejected credentials, polling suspended", err)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}
}

// publishDevices writes metrics for every available device and fans out
// states that changed since the last publish.
func (b *Bridge) publishDevices(devices map[string]Device, source string) {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		d := devices[id]
		state := d.StateMap()

		if b.metrics != nil && d.Available() {
			if fields := metricFields(state); len(fields) > 0 {
				b.metrics.WriteDeviceState(id, string(d.Kind()), fields)
			}
		}

		if b.stateUnchanged(id, state) {
			continue
		}

		msg := NewStateMessage(d)
		b.publishState(msg)
		b.recordState(id, state, source)
		if b.broadcaster != nil {
			b.broadcaster.Broadcast(BroadcastChannel, msg)
		}
		b.statesPublished.Add(1)
	}
}

func (b *Bridge) publishState(msg StateMessage) {
	if b.mqtt == nil {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	if err := b.mqtt.Publish(StateTopic(msg.DeviceID), payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

func (b *Bridge) recordState(id string, state map[string]any, source string) {
	if b.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, recordTimeout)
	defer cancel()
	if err := b.history.RecordStateChange(ctx, id, state, source); err != nil {
		b.logError("failed to record state", err)
	}
}

func (b *Bridge) recordCommand(cmd CommandMessage, ack AckMessage) {
	if b.history == nil {
		return
	}

	entry := history.CommandEntry{
		CommandID:  cmd.ID,
		DeviceID:   cmd.DeviceID,
		Action:     cmd.Command,
		Parameters: cmd.Parameters,
		Source:     cmd.Source,
		Status:     string(ack.Status),
		CreatedAt:  cmd.Timestamp,
	}
	if entry.DeviceID == "" {
		return
	}
	if ack.Error != nil {
		entry.ErrorCode = ack.Error.Code
		entry.ErrorMessage = ack.Error.Message
	}

	ctx, cancel := context.WithTimeout(b.ctx, recordTimeout)
	defer cancel()
	if err := b.history.RecordCommand(ctx, entry); err != nil {
		b.logError("failed to record command", err)
	}
}

// stateUnchanged reports whether state matches the last published one,
// caching it when it does not.
func (b *Bridge) stateUnchanged(id string, state map[string]any) bool {
	encoded, err := json.Marshal(state)
	if err != nil {
		return false
	}

	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	if b.stateCache[id] == string(encoded) {
		return true
	}
	b.stateCache[id] = string(encoded)
	return false
}

// pruneStateCache drops cache entries for devices no longer registered.
func (b *Bridge) pruneStateCache() {
	valid := make(map[string]struct{})
	for _, id := range b.manager.IDs() {
		valid[id] = struct{}{}
	}

	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()
	for id := range b.stateCache {
		if _, ok := valid[id]; !ok {
			delete(b.stateCache, id)
		}
	}
}

// metricFields keeps the numeric and boolean entries of a state map.
func metricFields(state map[string]any) map[string]any {
	fields := make(map[string]any, len(state))
	for k, v := range state {
		switch val := v.(type) {
		case float64, bool:
			fields[k] = val
		case int:
			fields[k] = float64(val)
		}
	}
	return fields
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
