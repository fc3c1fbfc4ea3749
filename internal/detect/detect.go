// Package detect wraps face detectors behind one synchronous call: a
// greyscale image in, bounding boxes out. Detectors are only ever called from
// the acquisition goroutine and need not be safe for concurrent use.
package detect

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/bryanchriswhite/CamWatch/internal/logger"
)

// Detector finds regions of interest in a greyscale frame
type Detector interface {
	Detect(img *image.Gray) []image.Rectangle
}

// Func adapts a plain function to Detector
type Func func(img *image.Gray) []image.Rectangle

// Detect calls f
func (f Func) Detect(img *image.Gray) []image.Rectangle {
	return f(img)
}

// Nop never detects anything
type Nop struct{}

// Detect returns no boxes
func (Nop) Detect(*image.Gray) []image.Rectangle {
	return nil
}

// Factory builds a detector from configuration
type Factory func(cfg config.DetectorConfig) (Detector, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"none": func(config.DetectorConfig) (Detector, error) { return Nop{}, nil },
	}
)

// Register makes a detector backend available by name
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Backends lists the registered backend names
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the configured detector. A backend that fails to initialise
// is an error; use the "none" backend to run without detection.
func New(cfg config.DetectorConfig) (Detector, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Backend]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown detector backend %q (available: %v)", cfg.Backend, Backends())
	}

	d, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("detector backend %q unavailable (set detector.backend to none to stream without detection): %w", cfg.Backend, err)
	}

	logger.WithComponent("detect").Info().Str("backend", cfg.Backend).Msg("Detector ready")
	return d, nil
}
