// Package preflight evaluates the gates that must pass before a run changes
// the system: privileges, tool availability, connectivity and free space.
//
// It also resolves the immutable Toolset that every later step receives.
package preflight
