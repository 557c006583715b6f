// Package version provides build and version information.
package version

// Version is the current application version.
const Version = "0.3.0"

// Milestones:
// 0.3.0 - Nelder-Mead polish stage, Prometheus metrics, sensor log streaming, daylight at the fix
// 0.2.0 - Interactive form, JSON export, legacy fine-stage return
// 0.1.0 - Initial release: three-stage grid search, heading/pitch observation builder
