// Package state persists the lock that keeps a single update running at a time.
//
// The FileRepository stores the lock as YAML next to the run logs and exposes a
// Repository interface that the orchestrator depends on.
package state
