// Package orchestrator runs one system update from preflight to summary.
//
// The sequence is fixed: privileges, tool resolution, snapshot, network,
// disk space, the APT steps, snap, flatpak, firmware and the reboot notice.
// Fatal failures stop the run, and step outcomes are only logged.
package orchestrator
