package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the orchestra.
const (
	MeasurementDeviceMetrics = "device_metrics"
	MeasurementPipelineSteps = "pipeline_steps"
)

// WriteDeviceReading records the numeric fields of one device.data event.
//
// Parameters:
//   - deviceID: Source device (tag)
//   - deviceType: Registered type name (tag, omitted when empty)
//   - fields: Numeric values only; an empty map writes nothing
//   - ts: Event timestamp
//
// Example:
//
//	client.WriteDeviceReading("thermo-1", "virtual-thermometer",
//	    map[string]any{"temperature": 27.4}, ev.Timestamp)
func (c *Client) WriteDeviceReading(deviceID, deviceType string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	tags := map[string]string{"device_id": deviceID}
	if deviceType != "" {
		tags["device_type"] = deviceType
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementDeviceMetrics, tags, fields, ts))
}

// WriteStepSample records the outcome and latency of one pipeline step.
func (c *Client) WriteStepSample(pipeline, device, action, status string, durationMS int64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"pipeline": pipeline,
		"action":   action,
		"status":   status,
	}
	if device != "" {
		tags["device_id"] = device
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementPipelineSteps, tags,
		map[string]any{"duration_ms": durationMS},
		ts,
	))
}
