package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/bryanchriswhite/CamWatch/internal/logger"
)

// Manager renders widgets onto frames in insertion order
type Manager struct {
	widgets []Widget
	mu      sync.RWMutex
	enabled bool
}

// NewManager creates a new overlay manager
func NewManager() *Manager {
	return &Manager{enabled: true}
}

// NewFromConfig builds the widget set described by the overlay config
func NewFromConfig(cfg config.OverlayConfig) *Manager {
	m := NewManager()
	m.enabled = cfg.Enabled

	if cfg.Boxes {
		_ = m.AddWidget(NewBoxesWidget("boxes", cfg.LineWidth))
	}
	if cfg.Label {
		_ = m.AddWidget(NewLabelWidget("label", 8, 8))
	}
	return m
}

// AddWidget appends a widget; later widgets draw over earlier ones
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().
		Str("id", widget.ID()).
		Str("type", widget.Type()).
		Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget from the overlay
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

// Widgets returns the widgets in render order
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Widget, len(m.widgets))
	copy(out, m.widgets)
	return out
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

// Render draws all enabled widgets onto img. Widget failures are logged and
// never stop the frame.
func (m *Manager) Render(img *image.RGBA, scene Scene) {
	if !m.IsEnabled() {
		return
	}

	for _, widget := range m.Widgets() {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img, scene); err != nil {
			logger.WithComponent("overlay").Warn().
				Err(err).
				Str("id", widget.ID()).
				Msg("Failed to render widget")
		}
	}
}
