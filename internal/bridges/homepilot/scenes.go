package homepilot

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Scene is a bridge-side scene: a stored set of device actions the
// bridge runs on its own.
type Scene struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Enabled is false for scenes switched off in the bridge UI.
	Enabled bool `json:"enabled"`

	// Executable is false for scenes that only run from their own
	// triggers and cannot be started on request.
	Executable bool `json:"executable"`
}

// RawScene is one entry of GET /v4/scenes.
type RawScene struct {
	SID                  any    `json:"sid"`
	Name                 string `json:"name"`
	Description          string `json:"description"`
	IsEnabled            any    `json:"isEnabled"`
	IsManuallyExecutable any    `json:"isManuallyExecutable"`
}

// scene converts the wire entry. Missing flags default to true, which
// is how older firmware without them behaves.
func (r RawScene) scene() (Scene, bool) {
	id := formatValue(r.SID)
	if id == "" {
		return Scene{}, false
	}
	s := Scene{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Enabled:     true,
		Executable:  true,
	}
	if b, ok := toBool(r.IsEnabled); ok {
		s.Enabled = b
	}
	if b, ok := toBool(r.IsManuallyExecutable); ok {
		s.Executable = b
	}
	return s, true
}

// discoverScenes lists the bridge's scenes. Scenes are optional: a
// failure other than ErrAuth keeps the previous list and is logged.
func (m *Manager) discoverScenes(ctx context.Context) (map[string]Scene, error) {
	raw, err := m.transport.GetScenes(ctx)
	if err != nil {
		if errors.Is(err, ErrAuth) {
			return nil, fmt.Errorf("listing scenes: %w", err)
		}
		m.logWarn("scene list unavailable, keeping previous scenes", "error", err)

		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.scenes, nil
	}

	scenes := make(map[string]Scene, len(raw))
	for _, r := range raw {
		s, ok := r.scene()
		if !ok {
			m.logDebug("skipping scene without id", "name", r.Name)
			continue
		}
		scenes[s.ID] = s
	}
	return scenes, nil
}

// Scenes returns every known scene, sorted by ID.
func (m *Manager) Scenes() []Scene {
	m.mu.RLock()
	out := make([]Scene, 0, len(m.scenes))
	for _, s := range m.scenes {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Scene returns one scene.
func (m *Manager) Scene(id string) (Scene, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scenes[id]
	if !ok {
		return Scene{}, fmt.Errorf("%w: %s", ErrSceneNotFound, id)
	}
	return s, nil
}

// ExecuteScene asks the bridge to run a scene now.
func (m *Manager) ExecuteScene(ctx context.Context, id string) error {
	s, err := m.Scene(id)
	if err != nil {
		return err
	}
	if !s.Enabled {
		return fmt.Errorf("%w: scene %s is disabled", ErrUnsupported, id)
	}
	if !s.Executable {
		return fmt.Errorf("%w: scene %s cannot be run manually", ErrUnsupported, id)
	}
	if err := m.transport.ExecuteScene(ctx, id); err != nil {
		return fmt.Errorf("executing scene %s: %w", id, err)
	}
	m.logDebug("scene executed", "scene_id", id)
	return nil
}
