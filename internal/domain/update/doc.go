// Package update contains the core domain types of an update run.
//
// It defines the step outcomes, the per-run Report, the preflight gates and
// the rules that turn a subprocess's exit code and output into an Outcome.
// The catalog of frontend and tool commands also lives here because it is
// pure data.
package update
