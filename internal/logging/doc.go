// Package logging builds the slog loggers used across the capture core
// and standardizes attribute helpers and field names so queue, upload,
// and coordinator events stay greppable.
package logging
