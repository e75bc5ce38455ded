package platform

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Config is passed to backend factories.
type Config struct {
	// Device restricts enumeration to one device when set.
	Device string
	Logger *slog.Logger
}

// Factory creates a backend.
type Factory func(cfg Config) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available by name. Backends call it from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("platform: backend %q registered twice", name))
	}
	registry[name] = factory
}

// Open creates the named backend.
func Open(name string, cfg Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown capture backend %q (available: %v)", name, Backends())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return factory(cfg)
}

// Backends returns the registered backend names, sorted.
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
