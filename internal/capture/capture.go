package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/bryanchriswhite/CamWatch/internal/config"
)

// ErrNoFrame is returned by Capture.Read when the source is alive but had no
// frame ready. Callers treat it as a transient miss, never as a broken handle.
var ErrNoFrame = errors.New("capture: no frame available")

// Opener opens capture handles against a source address
type Opener interface {
	// Open connects to the address and returns a readable handle.
	// It may block up to the backend's open timeout.
	Open(ctx context.Context, address string) (Capture, error)

	// Name returns a human-readable name for this backend
	Name() string
}

// Capture is one open connection to a video source
type Capture interface {
	// Read pulls exactly one frame. It returns ErrNoFrame for a transient
	// miss; any other error means the handle is no longer usable.
	Read() (image.Image, error)

	// Close releases the underlying resource
	Close() error
}

// Factory builds an Opener from configuration
type Factory func(cfg config.CaptureConfig) (Opener, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available by name. Backends compiled behind build
// tags register themselves from init.
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

// New builds the configured backend
func New(cfg config.CaptureConfig) (Opener, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Backend]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown capture backend %q (available: %v)", cfg.Backend, Backends())
	}
	return factory(cfg)
}
