// Package config defines the YAML settings shared by panic-dispatcher and
// panic-watchdog and provides helpers to load, validate and save them.
//
// Values that an external process mutates at runtime (server URL, device
// identifier, tracking flag) are not here; they live in the preferences store.
package config
