// Package engine provides the mechanism model behind the workbench.
//
// The engine package implements:
//   - A component registry with stable, never reused IDs
//   - Circular footprint collision tests and the derived constraint set
//   - The apply/release engagement state machine with settle timers
//   - Eased rotation and position animation driven by Tick
//   - Synthetic stress metrics and a ranked failure report
//
// Core Types:
//
// The Engine interface defines the command and query surface, implemented
// by Workbench. Tuning is a named profile of design constants (angles,
// durations, per-kind extents) loaded from JSON or YAML.
//
// Usage:
//
//	wb := engine.NewEngineWithDefaults()
//	wb.LoadExample()
//
//	status := wb.ApplyInput()
//	for wb.Animating() {
//		wb.Tick(time.Now())
//	}
//	analysis := wb.RunAnalysis()
//
// Concurrency:
//
// A Workbench is not safe for concurrent use. Animations and timers never
// run on their own goroutine; they advance only when Tick is called, so a
// caller that serializes commands and ticks needs no further locking.
package engine
