// Package power detects pending reboots left behind by package upgrades and
// can schedule one through shutdown(8).
package power
