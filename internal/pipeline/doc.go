// Package pipeline provides the pipeline runner for Device Orchestra.
//
// A pipeline is an ordered list of steps, each sending one named command
// to one device. The runner validates the whole pipeline up front, then
// executes the steps strictly in sequence, stopping at the first failure.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                  Runner (runner.go)                    │
//	│                                                        │
//	│  idle ─▶ validating ─▶ executing ─▶ completed | failed │
//	│              │              │                          │
//	│              ▼              ▼                          │
//	│  ┌──────────────────┐  ┌────────────────────────────┐  │
//	│  │ Validate         │  │ per step:                  │  │
//	│  │ (validation.go)  │  │  1. resolve device         │  │
//	│  │ every fault,     │  │  2. SendCommand / dry run  │  │
//	│  │ not just first   │  │  3. save_to → ResultSink   │  │
//	│  └──────────────────┘  │  4. pipeline.* event       │  │
//	│                        └────────────────────────────┘  │
//	│                                   │                    │
//	│                                   ▼                    │
//	│                   Recorder (repository.go, SQLite)      │
//	└───────────────────────────────────────────────────────┘
//
// # Built-in actions
//
// Steps without a device may use runner built-ins:
//
//	wait   pause for args.duration seconds (context-aware)
//	save   write args.data to save_to through the ResultSink
//
// # Dry runs
//
// A dry run validates and walks the steps in order but never dispatches a
// command, sleeps or writes to the sink. Each step yields a placeholder
// result marked "dry_run" and "simulated".
//
// # Failure handling
//
// Validation faults are returned together as a *ValidationError and no
// step runs. The first failing step aborts the run: the *ExecutionError
// names the step, carries its cause and the results of every earlier
// step, and counts the steps that were skipped. There is no retry.
//
// # Usage
//
//	runner := pipeline.NewRunner(mgr, bus, log)
//	runner.SetSink(pipeline.NewFileSink("results"))
//	runner.SetRecorder(pipeline.NewSQLiteRepository(db.DB))
//
//	run, err := runner.Execute(ctx, p, pipeline.Options{DryRun: false})
package pipeline
