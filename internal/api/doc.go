// Package api implements the read-only HTTP API and WebSocket event stream.
//
// This package provides:
//   - REST endpoints for device status and pipeline run history
//   - Prometheus exposition of the orchestra's metrics
//   - A WebSocket hub that mirrors bus events to subscribed clients
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Routes
//
//	GET /api/v1/health          liveness plus component summary
//	GET /api/v1/devices         every managed device's status (?type=, ?state=)
//	GET /api/v1/devices/{id}    one device
//	GET /api/v1/runs            recent pipeline runs (?limit=)
//	GET /api/v1/runs/{id}       one run with its step results
//	GET /api/v1/metrics         Prometheus exposition (also served at /metrics)
//	GET /api/v1/ws              event stream
//
// The API never changes device state. Commands are issued through the CLI
// and pipelines only.
//
// # WebSocket protocol
//
// Clients send {"type":"subscribe","id":"1","payload":{"channels":["device.data"]}}.
// A channel is an event type; "*" matches every event. Each matching bus
// event arrives as {"type":"event","event_type":...,"payload":<event>}.
package api
