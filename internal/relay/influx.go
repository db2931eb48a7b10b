package relay

import (
	"context"
	"math"
	"time"

	"github.com/nerrad567/device-orchestra/internal/device"
	"github.com/nerrad567/device-orchestra/internal/events"
)

// TelemetryWriter is the part of *influxdb.Client the relay needs.
type TelemetryWriter interface {
	WriteDeviceReading(deviceID, deviceType string, fields map[string]any, ts time.Time)
	WriteStepSample(pipeline, device, action, status string, durationMS int64, ts time.Time)
}

// DeviceLookup resolves a device ID to its device. *device.Manager satisfies it.
type DeviceLookup interface {
	Get(id string) (device.Device, error)
}

// InfluxRelay turns device.data events into device_metrics points and
// pipeline.step_completed events into pipeline_steps points.
type InfluxRelay struct {
	w       TelemetryWriter
	devices DeviceLookup
	drops   DropObserver
}

// NewInfluxRelay creates a relay writing through w. devices may be nil, in
// which case points carry no device_type tag.
func NewInfluxRelay(w TelemetryWriter, devices DeviceLookup) *InfluxRelay {
	return &InfluxRelay{w: w, devices: devices, drops: noopDrops{}}
}

// SetDropObserver sets where skipped events are counted.
func (r *InfluxRelay) SetDropObserver(o DropObserver) { r.drops = o }

// Types lists the event types the relay consumes, for events.ForTypes.
func (r *InfluxRelay) Types() []string {
	return []string{events.TypeDeviceData, events.TypePipelineStepCompleted}
}

// HandleEvent implements events.Handler.
func (r *InfluxRelay) HandleEvent(_ context.Context, ev events.Event) error {
	switch ev.Type {
	case events.TypeDeviceData:
		fields := NumericFields(ev.Payload)
		if len(fields) == 0 {
			r.drops.RelayDropped(NameInflux, DropEncodeFailed)
			return nil
		}
		r.w.WriteDeviceReading(ev.Source, r.deviceType(ev.Source), fields, ev.Timestamp)

	case events.TypePipelineStepCompleted:
		p := device.Args(ev.Payload)
		pipeline, _ := p.String("pipeline", "")
		dev, _ := p.String("device", "")
		action, _ := p.String("action", "")
		status, _ := p.String("status", "")
		ms, _ := p.Int("duration_ms", 0)
		r.w.WriteStepSample(pipeline, dev, action, status, int64(ms), ev.Timestamp)
	}
	return nil
}

func (r *InfluxRelay) deviceType(id string) string {
	if r.devices == nil {
		return ""
	}
	dev, err := r.devices.Get(id)
	if err != nil {
		return ""
	}
	return dev.Type()
}

// NumericFields keeps the finite numeric values of a payload, as float64.
// Identifiers such as reading_id are kept too; InfluxDB fields are cheap.
func NumericFields(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case float32:
			f = float64(n)
		case int:
			f = float64(n)
		case int64:
			f = float64(n)
		case int32:
			f = float64(n)
		case uint64:
			f = float64(n)
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out[k] = f
	}
	return out
}
