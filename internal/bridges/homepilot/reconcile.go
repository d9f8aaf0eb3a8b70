package homepilot

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Reconcile fetches one state snapshot and applies it to the registry.
//
// Devices present in the snapshot get their state replaced. Devices
// missing from it are marked unavailable and keep their last state.
// If any fetch fails, every device is marked unavailable and the error
// is returned.
//
// Returns:
//   - map[string]Device: Copy of the full registry after the cycle
//   - error: Wrapped ErrCannotConnect or ErrAuth on fetch failure
func (m *Manager) Reconcile(ctx context.Context) (map[string]Device, error) {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()

	snapshot, err := m.fetchSnapshot(ctx)
	if err != nil {
		m.markAllUnavailable()
		return nil, fmt.Errorf("reconciling device state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, d := range m.devices {
		if st, ok := snapshot[id]; ok {
			d.UpdateState(st)
		} else {
			d.MarkUnavailable()
		}
	}
	m.lastReconcile = time.Now()

	return m.snapshotLocked(), nil
}

// fetchSnapshot fetches the bulk state and the hub trio concurrently and
// merges them. The hub state is stored under HubID.
func (m *Manager) fetchSnapshot(ctx context.Context) (map[string]DeviceState, error) {
	var (
		states  map[string]DeviceState
		fw      FirmwareStatus
		version FirmwareVersion
		led     LEDStatus
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		states, err = m.transport.GetDevicesState(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		fw, err = m.transport.GetFirmwareStatus(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		version, err = m.transport.GetFirmwareVersion(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		led, err = m.transport.GetLEDStatus(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if states == nil {
		states = make(map[string]DeviceState)
	}
	states[HubID] = hubState(fw, version, led)
	return states, nil
}

// markAllUnavailable marks every device unavailable, keeping state.
func (m *Manager) markAllUnavailable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		d.MarkUnavailable()
	}
}
