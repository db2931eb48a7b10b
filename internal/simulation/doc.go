// Package simulation provides hardware-free devices for Device Orchestra.
//
// Two device families live here:
//
//   - Device: a configurable stand-in for a camera, motor, sensor or
//     generic instrument. Every command suffers an artificial delay and
//     may fail with a synthetic fault, both drawn from a seedable source
//     so runs can be reproduced.
//   - Thermometer: a virtual instrument with a background emitter that
//     publishes temperature readings and overheat alerts while started.
//
// # Parameters
//
//	device_type        camera | motor | sensor | generic   (default generic)
//	simulation_mode    normal | fast | slow | unstable | error
//	base_delay         seconds per command                 (default 0.1)
//	error_probability  0..1 chance of a synthetic fault    (default 0)
//	seed               integer; fixes latency and fault draws
//	commands           extra command names for the generic echo handler
//
// Mode scaling of the base delay: fast ×0.1, slow ×3, unstable ×U[0.5, 2],
// error ×2 with the fault probability tripled (capped at 1). A fault
// probability of 0 never faults and 1 always faults, in every mode.
//
// # Registered types
//
//	generic, generic-camera, generic-motor, generic-sensor,
//	simulated (kind taken from device_type), virtual-thermometer
//
// # Usage
//
//	factory := device.NewFactory(device.Deps{Bus: bus, Logger: log})
//	simulation.Register(factory)
//
//	cam, _ := factory.Create(simulation.TypeCamera, "fake_cam", device.Params{
//	    "base_delay": 0.01,
//	    "seed":       42,
//	})
package simulation
