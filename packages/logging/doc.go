// Package logging is the process logger shared by the CLI, runner and
// scheduler. Messages carry a subsystem attribute and are written through
// log/slog as text or JSON. Execution logs that belong to a run are stored
// separately as records; this package only covers diagnostics.
package logging
