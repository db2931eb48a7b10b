// Package device provides the device abstraction for Device Orchestra.
//
// Every piece of hardware, real or simulated, is driven through the same
// Device contract: a small lifecycle (Start, Stop, Status) and a single
// named-command entry point (SendCommand). Concrete device types register
// a constructor with a Factory; a Manager builds and owns the devices
// described by configuration records.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                              Device Layer                             │
//	│                                                                       │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌─────────────────┐  │
//	│  │     Factory      │    │     Manager      │    │   Base + Table  │  │
//	│  │   (factory.go)   │◀───│   (manager.go)   │    │ (base.go, ...)  │  │
//	│  │                  │    │                  │    │                 │  │
//	│  │ • type → ctor    │    │ • id → Device    │    │ • state machine │  │
//	│  │ • last one wins  │    │ • start/stop all │    │ • command table │  │
//	│  │ • no I/O         │    │ • lifecycle evts │    │ • arg accessors │  │
//	│  └──────────────────┘    └──────────────────┘    └─────────────────┘  │
//	└───────────────────────────────────────────────────────────────────────┘
//
// # Lifecycle
//
//	Uninitialized ──Start──▶ Started ──Stop──▶ Stopped
//	      │                     │
//	      └──(acquire fails)────┴──(fault)──▶ Error ──Stop──▶ Stopped
//
// Start on a Started device is a no-op. Start on a Stopped or Error device
// is a precondition violation. Stop is idempotent and never fails; release
// problems are logged.
//
// # Key Types
//
//   - Device: the lifecycle and command contract
//   - Base: embeddable state machine implementing the lifecycle rules
//   - CommandTable: closed set of command handlers for one device type
//   - Factory: type name → Constructor registry
//   - Manager: id → Device registry with bulk start/stop
//
// # Usage
//
//	factory := device.NewFactory(device.Deps{Bus: bus, Logger: log})
//	simulation.Register(factory)
//
//	mgr := device.NewManager(factory)
//	mgr.SetPublisher(bus)
//	if err := mgr.Load(records); err != nil {
//	    return err // *device.ConfigError listing every fault
//	}
//
//	res := mgr.StartAll(ctx)
//	defer mgr.StopAll(context.Background())
//
//	cam, _ := mgr.Get("fake_cam")
//	out, err := cam.SendCommand(ctx, device.Command{Name: "capture"})
//
// # Thread Safety
//
// Factory, Manager and Base are safe for concurrent use. Devices built on
// Base serialise Start and Stop; Status never blocks behind a slow Start.
package device
