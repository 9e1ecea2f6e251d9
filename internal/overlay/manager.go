package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/addertuner/internal/logger"
)

// Manager renders widgets onto published frames in insertion order
type Manager struct {
	widgets []Widget
	mu      sync.RWMutex
	enabled bool
}

// NewManager creates an empty, enabled overlay
func NewManager() *Manager {
	return &Manager{enabled: true}
}

// NewDefaultManager creates an overlay carrying the HUD
func NewDefaultManager(enabled bool) *Manager {
	m := NewManager()
	m.widgets = append(m.widgets, NewHUDWidget("hud"))
	m.enabled = enabled
	return m
}

// AddWidget adds a widget on top of the existing ones
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}
	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().Str("id", widget.ID()).Str("type", widget.Type()).Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget by ID
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, w := range m.widgets {
		if w.ID() == id {
			m.widgets = append(m.widgets[:i], m.widgets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("widget with ID %s not found", id)
}

// GetWidget retrieves a widget by ID
func (m *Manager) GetWidget(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.widgets {
		if w.ID() == id {
			return w, true
		}
	}
	return nil, false
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws every enabled widget onto img. A failing widget is logged and
// skipped.
func (m *Manager) Render(img *image.RGBA, st Status) {
	if m == nil || !m.IsEnabled() {
		return
	}

	m.mu.RLock()
	widgets := append([]Widget(nil), m.widgets...)
	m.mu.RUnlock()

	for _, w := range widgets {
		if !w.IsEnabled() {
			continue
		}
		if err := w.Render(img, st); err != nil {
			logger.WithComponent("overlay").Warn().Err(err).Str("id", w.ID()).Msg("Failed to render widget")
		}
	}
}
