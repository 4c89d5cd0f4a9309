// Package logging provides the engine's structured, file-based logging
// with rotation, built on log/slog and a JSON handler. Comprehensive logs
// are written to ~/.astdb/logs/ for debugging and troubleshooting.
//
// A collaborator that owns the process lifetime decides whether to also
// mirror logs to stderr; the engine itself only ever writes structured
// records through the returned *slog.Logger.
package logging
