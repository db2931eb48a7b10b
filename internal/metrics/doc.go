// Package metrics exposes orchestra activity as Prometheus collectors.
//
// One Metrics value owns a private prometheus.Registry and implements the
// observer hooks of the other packages:
//
//	events.Bus        → EventPublished, HandlerFailed
//	device.Manager    → CommandFinished
//	pipeline.Runner   → StepFinished, RunFinished
//	relay.*           → RelayDropped
//
// Device state gauges are computed at scrape time from a StatusSource, so
// they never drift from the Manager.
//
// The registry is served by Handler() and mounted at /metrics by the API.
package metrics
