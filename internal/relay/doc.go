// Package relay forwards bus events to external systems.
//
// Relays are ordinary events.Handler subscribers:
//
//	events.Bus ──► MQTTRelay ──queue──► worker (rate.Limiter) ──► mqtt.Client
//	           └─► InfluxRelay ─────────────────────────────────► influxdb.Client
//
// HandleEvent never blocks the bus. The MQTT relay hands events to a
// bounded queue drained by Run; when the queue is full the event is dropped
// and counted. InfluxDB writes are already non-blocking and batched by the
// client, so the Influx relay writes inline.
//
// Relays mirror events; they never feed anything back into the orchestra.
package relay
