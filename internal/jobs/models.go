package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clipforge/internal/render"
)

// Status represents the lifecycle of a production job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssembling Status = "assembling"
	StatusAssembled  Status = "assembled"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusAssembling,
	StatusAssembled,
	StatusFinalizing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusAssembling: {},
	StatusFinalizing: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// Job represents one video production job persisted in SQLite.
type Job struct {
	ID           string
	Title        string
	Channel      string
	Mood         string
	Report       bool
	ScenesJSON   string
	StillsJSON   string
	OutputJSON   string
	Status       Status
	ErrorMessage string
	Retryable    bool
	FinalFile    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsProcessing returns true when the job is mid-stage.
func (j Job) IsProcessing() bool {
	return IsProcessingStatus(j.Status)
}

// Scenes decodes the persisted script.
func (j Job) Scenes() ([]render.Scene, error) {
	if strings.TrimSpace(j.ScenesJSON) == "" {
		return nil, nil
	}
	var scenes []render.Scene
	if err := json.Unmarshal([]byte(j.ScenesJSON), &scenes); err != nil {
		return nil, fmt.Errorf("decode scenes: %w", err)
	}
	return scenes, nil
}

// SetScenes encodes the script for persistence.
func (j *Job) SetScenes(scenes []render.Scene) error {
	encoded, err := json.Marshal(scenes)
	if err != nil {
		return fmt.Errorf("encode scenes: %w", err)
	}
	j.ScenesJSON = string(encoded)
	return nil
}

// Stills decodes the persisted report still paths.
func (j Job) Stills() ([]string, error) {
	if strings.TrimSpace(j.StillsJSON) == "" {
		return nil, nil
	}
	var stills []string
	if err := json.Unmarshal([]byte(j.StillsJSON), &stills); err != nil {
		return nil, fmt.Errorf("decode stills: %w", err)
	}
	return stills, nil
}

// SetStills encodes the report still paths for persistence.
func (j *Job) SetStills(stills []string) error {
	encoded, err := json.Marshal(stills)
	if err != nil {
		return fmt.Errorf("encode stills: %w", err)
	}
	j.StillsJSON = string(encoded)
	return nil
}

// Output decodes the persisted pipeline output, or nil when assembly has not
// completed yet.
func (j Job) Output() (*render.PipelineOutput, error) {
	if strings.TrimSpace(j.OutputJSON) == "" {
		return nil, nil
	}
	var output render.PipelineOutput
	if err := json.Unmarshal([]byte(j.OutputJSON), &output); err != nil {
		return nil, fmt.Errorf("decode pipeline output: %w", err)
	}
	return &output, nil
}

// SetOutput persists the assembled intermediate state for resumable finalize.
func (j *Job) SetOutput(output *render.PipelineOutput) error {
	if output == nil {
		j.OutputJSON = ""
		return nil
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("encode pipeline output: %w", err)
	}
	j.OutputJSON = string(encoded)
	return nil
}

// SetFailed marks the job as failed, recording whether an external retry
// policy may re-enqueue it.
func (j *Job) SetFailed(message string, retryable bool) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.Retryable = retryable
}

// RenderJob converts the record into the pipeline's job description.
func (j Job) RenderJob() (render.Job, error) {
	scenes, err := j.Scenes()
	if err != nil {
		return render.Job{}, err
	}
	stills, err := j.Stills()
	if err != nil {
		return render.Job{}, err
	}
	return render.Job{
		ID:      j.ID,
		Title:   j.Title,
		Channel: j.Channel,
		Mood:    j.Mood,
		Report:  j.Report,
		Stills:  stills,
		Scenes:  scenes,
	}, nil
}
