// Package common holds helpers shared by several services.
//
// It provides a subprocess Runner with per-command timeouts and a
// locale-neutral environment, and utilities to detect the invoking user
// (the one behind sudo) whose home directory receives the run logs.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
