// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging setup, metrics and debug introspection for the
// socket layer.
//
// Provides:
//   - Config with defaults, ini file overlay and HIOLOAD_* environment overrides
//   - ConfigStore snapshots with reload listeners
//   - Metrics exported through go-metrics
//   - DebugProbes registry and platform probes
package control
