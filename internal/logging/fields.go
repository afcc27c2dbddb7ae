package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for video job identifiers.
	FieldJobID = "job_id"
	// FieldSceneIndex is the standardized structured logging key for the 0-based scene index.
	FieldSceneIndex = "scene_index"
	// FieldKeyword is the standardized structured logging key for footage search keywords.
	FieldKeyword = "keyword"
	// FieldEventType tags log records with a machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested operator next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
)
