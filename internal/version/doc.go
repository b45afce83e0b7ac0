// Package version exposes build metadata for linux-updater.
//
// Version, Commit and BuildTime are injected at build time via -ldflags
// and default to placeholders for local builds.
package version
