package templatepublish

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"template-publisher/internal/common/camunda"
	"template-publisher/internal/common/config"
	"template-publisher/internal/common/errors"
	"template-publisher/internal/common/logger"
	"template-publisher/internal/common/validation"
)

const (
	WorkerName       = "template-publish"
	TaskTypePublish  = "layer.template.publish"
	TaskTypeValidate = "layer.template.validate"
)

// ModeForTaskType maps a Zeebe task type onto a run mode.
func ModeForTaskType(taskType string) (string, bool) {
	switch taskType {
	case TaskTypePublish:
		return ModePush, true
	case TaskTypeValidate:
		return ModeValidate, true
	}
	return "", false
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	camunda      *camunda.Client
	service      *Service
	errorHandler *errors.ErrorHandler
	jobWorkers   []worker.JobWorker
}

type HandlerOptions struct {
	AppConfig    *config.Config
	Camunda      *camunda.Client
	CustomConfig *Config
	Logger       logger.Logger
	Dependencies ServiceDependencies
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", WorkerName, err)
	}

	loggerInstance := opts.Logger
	if loggerInstance == nil {
		loggerInstance = logger.NewStructured("info", "json")
	}

	deps := opts.Dependencies
	if deps.Records == nil || deps.Projects == nil {
		return nil, fmt.Errorf("%s requires an Airtable record store and a Layer client", WorkerName)
	}
	if deps.Logger == nil {
		deps.Logger = loggerInstance
	}

	return &Handler{
		config:       workerConfig,
		logger:       loggerInstance,
		camunda:      opts.Camunda,
		service:      NewService(deps, workerConfig),
		errorHandler: errors.NewErrorHandler(loggerInstance),
	}, nil
}

func (h *Handler) Service() *Service { return h.service }

// Invoke runs one mode with an explicit input. It is shared by the CLI and
// the HTTP trigger.
func (h *Handler) Invoke(ctx context.Context, mode string, input Input) Response {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()
	return h.service.Run(ctx, mode, input)
}

// Handle processes a Zeebe job of either task type.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing template job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"jobType":            job.GetType(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	mode, ok := ModeForTaskType(job.GetType())
	if !ok {
		h.errorHandler.HandleJobError(ctx, client, job, errors.NewInvalidInputError(fmt.Sprintf("unsupported task type %q", job.GetType())))
		return
	}

	input, err := h.parseInput(job)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	resp := h.service.Run(ctx, mode, input)
	if resp.StatusCode >= 400 {
		h.errorHandler.HandleJobError(ctx, client, job, responseError(resp))
		return
	}

	h.completeJob(ctx, client, job, resp)
}

func (h *Handler) parseInput(job entities.Job) (Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return Input{}, errors.NewInvalidInputError(fmt.Sprintf("failed to parse job variables: %v", err))
	}
	return ParseInput(variables)
}

// ParseInput validates a loosely typed variables map and extracts Input.
func ParseInput(variables map[string]interface{}) (Input, error) {
	result := validation.ValidateInput(variables, GetInputSchema())
	if !result.Valid {
		return Input{}, errors.NewInvalidInputError(fmt.Sprintf("validation errors: %v", result.GetErrorMessages()))
	}

	var input Input
	if v, ok := variables["maxRecords"].(float64); ok {
		input.MaxRecords = int(v)
	}
	return input, nil
}

// responseError rebuilds a StandardError from a failed Response so the job
// error carries the same code the other surfaces report.
func responseError(resp Response) *errors.StandardError {
	code := errors.ErrorCode(resp.Body.Code)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return &errors.StandardError{
		Code:      code,
		Message:   resp.Body.Error,
		Timestamp: time.Now().UTC(),
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, resp Response) {
	variables := map[string]interface{}{
		"statusCode": resp.StatusCode,
		"message":    resp.Body.Message,
	}

	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(variables)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	h.logger.Info("Completed template job", map[string]interface{}{
		"jobKey":  job.GetKey(),
		"message": resp.Body.Message,
	})
}

// Register opens one job worker per task type.
func (h *Handler) Register() error {
	if !h.config.Enabled {
		h.logger.Info("Worker is disabled, skipping registration", map[string]interface{}{
			"worker": WorkerName,
		})
		return nil
	}
	if h.camunda == nil {
		return fmt.Errorf("%s: camunda client is not configured", WorkerName)
	}

	zeebeClient := h.camunda.GetClient()
	for _, taskType := range []string{TaskTypePublish, TaskTypeValidate} {
		jobWorker := zeebeClient.NewJobWorker().
			JobType(taskType).
			Handler(h.Handle).
			MaxJobsActive(h.config.MaxJobsActive).
			Timeout(h.config.Timeout).
			Name(fmt.Sprintf("%s-worker", taskType)).
			Open()
		h.jobWorkers = append(h.jobWorkers, jobWorker)

		h.logger.Info("Worker registered with Camunda", map[string]interface{}{
			"taskType":      taskType,
			"maxJobsActive": h.config.MaxJobsActive,
			"timeout":       h.config.Timeout.String(),
		})
	}
	return nil
}

func (h *Handler) Close() {
	for _, w := range h.jobWorkers {
		w.Close()
		w.AwaitClose()
	}
	h.jobWorkers = nil
}
