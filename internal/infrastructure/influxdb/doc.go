// Package influxdb writes orchestra telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//   - device_metrics: numeric fields of device.data events, tagged by device
//   - pipeline_steps: duration_ms per executed step, tagged by pipeline,
//     action and status
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
// Writes are batched according to batch_size and flush_interval; failures
// are reported asynchronously through SetOnError.
package influxdb
