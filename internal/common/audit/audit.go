// Package audit keeps an optional history of publisher runs. Sinks are best
// effort: callers log their errors and carry on.
package audit

import (
	"context"
	"time"
)

// Record outcomes.
const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// PublishRun describes what one push run did to one record.
type PublishRun struct {
	RunID             string
	RecordID          string
	TemplateName      string
	Mode              string
	ProjectID         string
	ProjectURL        string
	ProjectCreated    bool
	CategoriesCreated int
	FieldsCreated     int
	Outcome           string
	Error             string
	StartedAt         time.Time
	FinishedAt        time.Time
}

// CategoryCheck is the validation outcome of one schema category.
type CategoryCheck struct {
	Name       string `json:"name"`
	RemoteName string `json:"remoteName,omitempty"`
	Outcome    string `json:"outcome"`
}

// ValidationReport is the audit of one record in validation mode.
type ValidationReport struct {
	RunID        string          `json:"runId"`
	RecordID     string          `json:"recordId"`
	TemplateName string          `json:"templateName"`
	ProjectID    string          `json:"projectId"`
	ProjectURL   string          `json:"projectUrl"`
	Categories   []CategoryCheck `json:"categories"`
	Missing      int             `json:"missing"`
	Mismatched   int             `json:"mismatched"`
	Matched      int             `json:"matched"`
	CheckedAt    time.Time       `json:"checkedAt"`
}

type PublishRecorder interface {
	RecordPublish(ctx context.Context, run PublishRun) error
}

type ValidationRecorder interface {
	RecordValidation(ctx context.Context, report ValidationReport) error
}
