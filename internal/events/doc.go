// Package events provides the in-process event bus for Device Orchestra.
//
// Devices, the device manager and the pipeline runner publish events;
// policies, relays and the API's live stream subscribe to them. The bus
// is synchronous: Publish returns once every subscriber has seen the event.
//
// Architecture:
//
//	┌──────────────┐   Publish    ┌───────────────────────────────────┐
//	│   Manager    │─────────────▶│              Bus (bus.go)          │
//	│ Thermometer  │              │                                   │
//	│   Runner     │              │  dispatch lock ──▶ snapshot subs  │
//	└──────────────┘              │        │                          │
//	                              │        ▼                          │
//	                              │  handler 1 → handler 2 → ...      │
//	                              │  (errors and panics contained)    │
//	                              │        │                          │
//	                              │        ▼                          │
//	                              │  drain events queued by handlers  │
//	                              └───────────────────────────────────┘
//
// # Ordering
//
// Handlers run in subscription order, once each, on the publishing
// goroutine. Publishes from different goroutines are serialised. A handler
// that publishes while it is being dispatched does not block: its event is
// queued and dispatched once the current event has reached every handler.
//
// # Failure isolation
//
// A handler that returns an error or panics is logged and counted; the
// remaining handlers still run and the publisher never sees the failure.
//
// # Usage
//
//	bus := events.NewBus()
//	bus.SetLogger(log)
//
//	id := bus.Subscribe("cooling", events.ForTypes(policy, events.TypeThermometerOverheat))
//	defer bus.Unsubscribe(id)
//
//	bus.Publish(ctx, events.Event{
//	    Type:    events.TypeDeviceData,
//	    Source:  "thermo1",
//	    Payload: map[string]any{"temperature": 24.5},
//	})
package events
