package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCaptureID is the standardized structured logging key for capture identifiers.
	FieldCaptureID = "capture_id"
	// FieldMode is the standardized structured logging key for capture modes.
	FieldMode = "mode"
	// FieldAttempt is the standardized structured logging key for upload attempt counts.
	FieldAttempt = "attempt"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator guidance on errors.
	FieldErrorHint = "error_hint"
)
