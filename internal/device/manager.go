package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/device-orchestra/internal/events"
)

// CommandObserver receives the outcome of every command sent through
// Manager.SendCommand. err is nil on success.
type CommandObserver interface {
	CommandFinished(deviceType, command string, err error, d time.Duration)
}

// Manager owns the set of configured devices, keyed by ID.
//
// Devices keep the order in which they were loaded. StartAll walks that
// order; StopAll walks it in reverse.
//
// All public methods are thread-safe.
type Manager struct {
	factory *Factory

	mu      sync.RWMutex // protects devices, order
	devices map[string]Device
	order   []string

	bus      events.Publisher
	logger   Logger
	observer CommandObserver
}

// NewManager creates an empty manager that builds devices with factory.
func NewManager(factory *Factory) *Manager {
	return &Manager{
		factory: factory,
		devices: make(map[string]Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetPublisher enables lifecycle events (device.started, device.stopped,
// device.error).
func (m *Manager) SetPublisher(bus events.Publisher) {
	m.bus = bus
}

// SetCommandObserver sets the observer notified after each SendCommand.
func (m *Manager) SetCommandObserver(o CommandObserver) {
	m.observer = o
}

// Load builds one device per record.
//
// Every record is checked before anything is constructed: missing IDs or
// types, duplicate IDs (within records or against managed devices),
// unknown types and rejected params are all collected into a single
// *ConfigError. On error no device is added.
func (m *Manager) Load(records []Config) error {
	m.mu.RLock()
	var faults []string
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		label := fmt.Sprintf("device[%d]", i)
		if rec.ID != "" {
			label = fmt.Sprintf("device[%d] %q", i, rec.ID)
		}

		if strings.TrimSpace(rec.ID) == "" {
			faults = append(faults, label+": id is required")
		} else {
			if first, dup := seen[rec.ID]; dup {
				faults = append(faults, fmt.Sprintf("%s: duplicate id (first defined at device[%d])", label, first))
			} else {
				seen[rec.ID] = i
			}
			if _, exists := m.devices[rec.ID]; exists {
				faults = append(faults, label+": id already managed")
			}
		}

		switch {
		case strings.TrimSpace(rec.Type) == "":
			faults = append(faults, label+": type is required")
		case !m.factory.IsRegistered(rec.Type):
			faults = append(faults, fmt.Sprintf("%s: unknown type %q (registered: %s)",
				label, rec.Type, strings.Join(m.factory.Types(), ", ")))
		}
	}
	m.mu.RUnlock()

	if len(faults) > 0 {
		return &ConfigError{Faults: faults}
	}

	built := make([]Device, 0, len(records))
	for i, rec := range records {
		dev, err := m.factory.Create(rec.Type, rec.ID, rec.Params)
		if err != nil {
			faults = append(faults, fmt.Sprintf("device[%d] %q: %v", i, rec.ID, err))
			continue
		}
		built = append(built, dev)
	}
	if len(faults) > 0 {
		return &ConfigError{Faults: faults}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, dev := range built {
		if _, exists := m.devices[dev.ID()]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateDevice, dev.ID())
		}
	}
	for _, dev := range built {
		m.devices[dev.ID()] = dev
		m.order = append(m.order, dev.ID())
	}

	m.logger.Info("devices loaded", "count", len(built))
	return nil
}

// Add registers an already-constructed device.
func (m *Manager) Add(dev Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[dev.ID()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateDevice, dev.ID())
	}
	m.devices[dev.ID()] = dev
	m.order = append(m.order, dev.ID())
	return nil
}

// Get returns the device with the given ID or ErrUnknownDevice.
func (m *Manager) Get(id string) (Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dev, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return dev, nil
}

// Has reports whether id is managed.
func (m *Manager) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.devices[id]
	return ok
}

// IDs returns the managed device IDs in load order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids
}

// Len returns the number of managed devices.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Start starts a single device.
func (m *Manager) Start(ctx context.Context, id string) error {
	dev, err := m.Get(id)
	if err != nil {
		return err
	}
	return m.start(ctx, dev)
}

// Stop stops a single device. Only an unknown ID is reported.
func (m *Manager) Stop(ctx context.Context, id string) error {
	dev, err := m.Get(id)
	if err != nil {
		return err
	}
	m.stop(ctx, dev)
	return nil
}

// SendCommand dispatches cmd to the device with the given ID.
//
// It is the single entry point used by the pipeline runner, the cooling
// policy and the debug console, so every command is observed once. A
// panic inside the device is recovered and returned as ErrDeviceState.
func (m *Manager) SendCommand(ctx context.Context, id string, cmd Command) (result Result, err error) {
	dev, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: panic during %s: %v", ErrDeviceState, cmd.Name, r)
			m.logger.Error("device command panicked", "device_id", id, "command", cmd.Name, "panic", r)
		}
		if m.observer != nil {
			m.observer.CommandFinished(dev.Type(), cmd.Name, err, time.Since(started))
		}
	}()

	return dev.SendCommand(ctx, cmd)
}

// StartAll attempts to start every device, in load order.
// A failing device does not prevent the others from starting.
func (m *Manager) StartAll(ctx context.Context) BulkResult {
	res := newBulkResult()
	for _, dev := range m.snapshot() {
		if err := m.start(ctx, dev); err != nil {
			res.Failed[dev.ID()] = err
			continue
		}
		res.Succeeded = append(res.Succeeded, dev.ID())
	}
	return res
}

// StopAll stops every device, in reverse load order.
func (m *Manager) StopAll(ctx context.Context) BulkResult {
	res := newBulkResult()
	devs := m.snapshot()
	for i := len(devs) - 1; i >= 0; i-- {
		dev := devs[i]
		if err := m.stop(ctx, dev); err != nil {
			res.Failed[dev.ID()] = err
			continue
		}
		res.Succeeded = append(res.Succeeded, dev.ID())
	}
	return res
}

// Status returns a snapshot of every device's status, keyed by ID.
func (m *Manager) Status() map[string]Status {
	devs := m.snapshot()
	out := make(map[string]Status, len(devs))
	for _, dev := range devs {
		out[dev.ID()] = dev.Status()
	}
	return out
}

// StatusList returns every device's status in load order.
func (m *Manager) StatusList() []Status {
	devs := m.snapshot()
	out := make([]Status, 0, len(devs))
	for _, dev := range devs {
		out = append(out, dev.Status())
	}
	return out
}

func (m *Manager) snapshot() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	devs := make([]Device, 0, len(m.order))
	for _, id := range m.order {
		devs = append(devs, m.devices[id])
	}
	return devs
}

func (m *Manager) start(ctx context.Context, dev Device) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during start: %v", ErrDeviceState, r)
		}
		if err != nil {
			m.logger.Error("device start failed", "device_id", dev.ID(), "error", err)
			m.publish(ctx, events.TypeDeviceError, dev, map[string]any{"op": "start", "error": err.Error()})
			return
		}
		m.logger.Info("device started", "device_id", dev.ID(), "type", dev.Type())
		m.publish(ctx, events.TypeDeviceStarted, dev, nil)
	}()
	return dev.Start(ctx)
}

func (m *Manager) stop(ctx context.Context, dev Device) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during stop: %v", r)
			m.logger.Error("device stop panicked", "device_id", dev.ID(), "error", err)
			m.publish(ctx, events.TypeDeviceError, dev, map[string]any{"op": "stop", "error": err.Error()})
			return
		}
		m.logger.Info("device stopped", "device_id", dev.ID())
		m.publish(ctx, events.TypeDeviceStopped, dev, nil)
	}()
	dev.Stop(ctx)
	return nil
}

func (m *Manager) publish(ctx context.Context, eventType string, dev Device, payload map[string]any) {
	if m.bus == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	payload["device_type"] = dev.Type()
	m.bus.Publish(ctx, events.Event{Type: eventType, Source: dev.ID(), Payload: payload})
}

// BulkResult reports the outcome of StartAll or StopAll.
type BulkResult struct {
	Succeeded []string
	Failed    map[string]error
}

func newBulkResult() BulkResult {
	return BulkResult{Failed: make(map[string]error)}
}

// OK reports whether every device succeeded.
func (r BulkResult) OK() bool { return len(r.Failed) == 0 }

// FailedIDs returns the IDs that failed, sorted.
func (r BulkResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Err joins every per-device failure, or returns nil.
func (r BulkResult) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, id := range r.FailedIDs() {
		errs = append(errs, fmt.Errorf("%s: %w", id, r.Failed[id]))
	}
	return errors.Join(errs...)
}
