package preflight

import (
	"maps"
	"slices"

	"github.com/oshokin/linux-updater/internal/domain/update"
)

// Well-known tool names looked up on PATH.
const (
	ToolTimeshift = "timeshift"
	ToolSnap      = "snap"
	ToolFlatpak   = "flatpak"
	ToolFwupdmgr  = "fwupdmgr"
)

// optionalTools are resolved when present but never installed.
func optionalTools() []string {
	return []string{ToolTimeshift, ToolSnap, ToolFlatpak, ToolFwupdmgr}
}

// Toolset is the set of executables chosen once during preflight.
// It is read-only after construction.
type Toolset struct {
	frontend update.Frontend
	paths    map[string]string
}

// NewToolset builds a Toolset from a resolved frontend and tool paths.
func NewToolset(frontend update.Frontend, paths map[string]string) *Toolset {
	return &Toolset{
		frontend: frontend,
		paths:    maps.Clone(paths),
	}
}

// Frontend returns the chosen APT-compatible frontend.
func (t *Toolset) Frontend() update.Frontend {
	return t.frontend
}

// Path returns the resolved path of a tool, or "" when it is not installed.
func (t *Toolset) Path(tool string) string {
	return t.paths[tool]
}

// Has reports whether a tool was found.
func (t *Toolset) Has(tool string) bool {
	return t.Path(tool) != ""
}

// Tools lists the names of every resolved tool in sorted order.
func (t *Toolset) Tools() []string {
	return slices.Sorted(maps.Keys(t.paths))
}
