package templatepublish

import (
	"context"

	"template-publisher/internal/common/airtable"
	"template-publisher/internal/common/audit"
	"template-publisher/internal/common/layer"
	"template-publisher/internal/common/lease"
	"template-publisher/internal/common/logger"
	"template-publisher/internal/common/notify"
	"template-publisher/internal/common/observability"
	"template-publisher/internal/models"
)

// Invocation modes.
const (
	ModePush     = "push"
	ModeValidate = "validate"
)

// Response messages.
const (
	MessageNoRecords           = "No records with status Push."
	MessagePushComplete        = "Push complete."
	MessageValidationCompleted = "Validation completed."
)

// Category outcomes in validation mode.
const (
	OutcomeNotFound = "not_found"
	OutcomeMismatch = "mismatch"
	OutcomeOK       = "ok"
)

// Input carries the optional invocation parameters.
type Input struct {
	MaxRecords int `json:"maxRecords,omitempty"`
}

// Response is the invocation result for every surface: the CLI prints it,
// the HTTP trigger writes it verbatim and the Zeebe worker completes the job
// with it.
type Response struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

type ResponseBody struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// RecordStore is the Airtable side of the pipeline.
type RecordStore interface {
	ListRecords(ctx context.Context, formula string, maxRecords int) ([]models.TemplateRecord, error)
	UpdateRecords(ctx context.Context, updates ...airtable.RecordUpdate) error
}

// ProjectAPI is the Layer side of the pipeline.
type ProjectAPI interface {
	CreateProject(ctx context.Context, name string, isPublic bool) (*layer.Project, error)
	CreateCategory(ctx context.Context, projectID, name string) (string, error)
	ListCategories(ctx context.Context, projectID string) ([]layer.Category, error)
	CreateField(ctx context.Context, categoryID string, field models.Field) error
	ListFields(ctx context.Context, categoryID string) ([]layer.Field, error)
}

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, f notify.Failure)
}

// ServiceDependencies wires the service. Records, Projects and Logger are
// required; the rest are optional.
type ServiceDependencies struct {
	Logger        logger.Logger
	Records       RecordStore
	Projects      ProjectAPI
	Lease         lease.Manager
	Publishes     audit.PublishRecorder
	Validations   audit.ValidationRecorder
	Notifier      FailureNotifier
	Observability *observability.Observability
}

// recordPlan is a record that passed pre-flight together with its schema.
type recordPlan struct {
	record models.TemplateRecord
	schema models.Schema
}

// publishResult is what publishing one record did remotely.
type publishResult struct {
	projectID         string
	projectURL        string
	projectCreated    bool
	categoriesCreated int
	fieldsCreated     int
}
