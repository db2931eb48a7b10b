package device

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory maps device type names to constructors.
//
// All public methods are thread-safe.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	deps  Deps
}

// NewFactory creates an empty factory. deps are passed to every constructor.
func NewFactory(deps Deps) *Factory {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	return &Factory{
		ctors: make(map[string]Constructor),
		deps:  deps,
	}
}

// Register stores ctor under typeName, replacing any previous entry.
// It reports whether an existing registration was replaced.
func (f *Factory) Register(typeName string, ctor Constructor) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, replaced := f.ctors[typeName]
	f.ctors[typeName] = ctor
	if replaced {
		f.deps.Logger.Warn("device type registration replaced", "type", typeName)
	} else {
		f.deps.Logger.Debug("device type registered", "type", typeName)
	}
	return replaced
}

// Create builds a new Uninitialized device of typeName.
//
// Returns ErrUnknownDeviceType when typeName has no constructor, and an
// error wrapping ErrConfiguration when the id or params are rejected.
func (f *Factory) Create(typeName, id string, params Params) (Device, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[typeName]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)",
			ErrUnknownDeviceType, typeName, strings.Join(f.Types(), ", "))
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrConfiguration)
	}

	dev, err := ctor(id, params.Copy(), f.deps)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: device %q (%s): %w", ErrConfiguration, id, typeName, err)
	}
	return dev, nil
}

// Types returns the registered type names, sorted.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.ctors))
	for t := range f.ctors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsRegistered reports whether typeName has a constructor.
func (f *Factory) IsRegistered(typeName string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ctors[typeName]
	return ok
}
