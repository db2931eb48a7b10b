// Package orchestra assembles the core components into one context object.
//
// An Orchestra owns the event bus, the device factory and manager, the
// pipeline runner, the diagnostics tester and the metrics registry, all
// wired together:
//
//	Factory ──builds──► Manager ──commands──► Device
//	                       │                     │
//	Runner ──SendCommand───┘        events ◄─────┘
//	   │                               │
//	   └──pipeline.* events──► Bus ◄───┘ ──► subscribers (log, policy, relays, ws)
//
// The simulated device types are registered on construction. Run history
// is kept when the database is enabled. Close stops every device and
// releases the database.
//
// Usage:
//
//	orc, err := orchestra.New(ctx, cfg, log)
//	if err != nil { ... }
//	defer orc.Close(context.Background())
//
//	if err := orc.LoadDevices(cfg.Devices.Manifest); err != nil { ... }
package orchestra
