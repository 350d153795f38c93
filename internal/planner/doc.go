// Package planner builds the ordered operation plan of a preparation run.
//
// The plan lists every copy, move, delete and patch the orchestrator will
// perform, in execution order, and reports conflicts found by simulating the
// run against the current filesystem. Dry runs print the plan instead of
// executing it.
//
// Key responsibilities:
//   - Generate a Plan with ordered operations (packages, assemblies, asset manipulations, patches)
//   - Detect conflicts (existing targets without overwrite, missing sources, missing patch files)
//   - Track paths created or removed earlier in the same plan
package planner
