package templatepublish

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"template-publisher/internal/common/airtable"
	"template-publisher/internal/common/audit"
	"template-publisher/internal/common/errors"
	"template-publisher/internal/common/layer"
	"template-publisher/internal/common/lease"
	"template-publisher/internal/common/logger"
	"template-publisher/internal/common/metrics"
	"template-publisher/internal/common/notify"
	"template-publisher/internal/common/observability"
	"template-publisher/internal/common/validation"
	"template-publisher/internal/models"
)

// Service runs the publisher pipeline. Records, categories and fields are
// processed one at a time, in order, and runs from every surface are
// serialized within the process.
type Service struct {
	runMu sync.Mutex

	config      *Config
	logger      logger.Logger
	records     RecordStore
	projects    ProjectAPI
	lease       lease.Manager
	publishes   audit.PublishRecorder
	validations audit.ValidationRecorder
	notifier    FailureNotifier
	obs         *observability.Observability
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	leases := deps.Lease
	if leases == nil {
		leases = lease.Noop{}
	}
	return &Service{
		config:      config,
		logger:      deps.Logger,
		records:     deps.Records,
		projects:    deps.Projects,
		lease:       leases,
		publishes:   deps.Publishes,
		validations: deps.Validations,
		notifier:    deps.Notifier,
		obs:         deps.Observability,
	}
}

// Run dispatches on mode. Unknown modes are rejected with 400.
func (s *Service) Run(ctx context.Context, mode string, input Input) Response {
	switch mode {
	case ModePush:
		return s.Push(ctx, input)
	case ModeValidate:
		return s.Validate(ctx, input)
	default:
		return errorResponse(errors.NewInvalidInputError(fmt.Sprintf("unknown mode %q", mode)))
	}
}

// Push publishes every record with Status=Push.
func (s *Service) Push(ctx context.Context, input Input) Response {
	return s.run(ctx, ModePush, input, s.push)
}

// Validate audits the categories of already published records against Layer
// without changing anything.
func (s *Service) Validate(ctx context.Context, input Input) Response {
	return s.run(ctx, ModeValidate, input, s.validate)
}

type runFunc func(ctx context.Context, log logger.Logger, runID string, input Input) (string, error)

func (s *Service) run(ctx context.Context, mode string, input Input, fn runFunc) Response {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runID := uuid.New().String()
	log := s.logger.WithFields(map[string]interface{}{
		"runId": runID,
		"mode":  mode,
	})

	start := time.Now()
	metrics.RunsActive.WithLabelValues(mode).Inc()
	defer metrics.RunsActive.WithLabelValues(mode).Dec()

	log.Info("Run started", map[string]interface{}{"maxRecords": input.MaxRecords})

	var resp Response
	message, err := safeRun(ctx, log, runID, input, fn)
	if err != nil {
		stdErr := errors.Normalize(err)
		resp = errorResponse(stdErr)
		log.Error("Run failed", map[string]interface{}{
			"statusCode":    resp.StatusCode,
			"errorCode":     string(stdErr.Code),
			"errorCategory": errors.GetErrorCategory(stdErr.Code),
			"error":         stdErr.Error(),
		})
		if s.notifier != nil {
			s.notifier.NotifyFailure(ctx, notify.Failure{
				RunID:      runID,
				Mode:       mode,
				StatusCode: resp.StatusCode,
				Code:       string(stdErr.Code),
				Message:    resp.Body.Error,
			})
		}
	} else {
		resp = Response{StatusCode: http.StatusOK, Body: ResponseBody{Message: message}}
		log.Info("Run finished", map[string]interface{}{"message": message})
	}

	duration := time.Since(start)
	metrics.RunsCompleted.WithLabelValues(mode, strconv.Itoa(resp.StatusCode)).Inc()
	metrics.RunDuration.WithLabelValues(mode).Observe(duration.Seconds())
	s.obs.RecordRun(ctx, mode, resp.StatusCode, duration)

	return resp
}

func safeRun(ctx context.Context, log logger.Logger, runID string, input Input, fn runFunc) (message string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during run: %v", r)
		}
	}()
	return fn(ctx, log, runID, input)
}

func errorResponse(stdErr *errors.StandardError) Response {
	msg := stdErr.Message
	if stdErr.Details != "" {
		msg += ": " + stdErr.Details
	}
	return Response{
		StatusCode: errors.HTTPStatus(stdErr.Code),
		Body:       ResponseBody{Error: msg, Code: string(stdErr.Code)},
	}
}

func (s *Service) selectRecords(ctx context.Context, input Input) ([]models.TemplateRecord, error) {
	maxRecords := input.MaxRecords
	if maxRecords <= 0 && s.config.SingleRecord {
		maxRecords = 1
	}
	return s.records.ListRecords(ctx, airtable.StatusFormula(models.StatusPush), maxRecords)
}

func (s *Service) push(ctx context.Context, log logger.Logger, runID string, input Input) (string, error) {
	records, err := s.selectRecords(ctx, input)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		log.Info("No records to publish", nil)
		return MessageNoRecords, nil
	}

	plans, err := preflight(records)
	if err != nil {
		return "", err
	}
	log.Info("Records selected", map[string]interface{}{"count": len(plans)})

	for _, plan := range plans {
		recLog := log.WithFields(map[string]interface{}{
			"recordId": plan.record.ID,
			"template": plan.record.TemplateName(),
		})

		startedAt := time.Now()
		result, err := s.publishRecord(ctx, recLog, plan)

		if err != nil && errors.CodeOf(err) == errors.ErrCodeLeaseUnavailable {
			recLog.Warn("Record is leased by another run, skipping", map[string]interface{}{"error": err.Error()})
			s.recordOutcome(ctx, ModePush, audit.OutcomeSkipped)
			s.auditPublish(ctx, recLog, runID, plan, result, startedAt, audit.OutcomeSkipped, err)
			continue
		}
		if err != nil {
			s.recordOutcome(ctx, ModePush, audit.OutcomeFailed)
			s.auditPublish(ctx, recLog, runID, plan, result, startedAt, audit.OutcomeFailed, err)
			return "", err
		}

		s.recordOutcome(ctx, ModePush, audit.OutcomePublished)
		s.auditPublish(ctx, recLog, runID, plan, result, startedAt, audit.OutcomePublished, nil)
	}

	return MessagePushComplete, nil
}

// preflight checks every record before any remote mutation so a bad record
// cannot leave the rest of the batch half published.
func preflight(records []models.TemplateRecord) ([]recordPlan, error) {
	plans := make([]recordPlan, 0, len(records))
	schema := GetRecordSchema()

	for _, record := range records {
		result := validation.ValidateInput(record.Fields, schema)
		if !result.Valid {
			if missing := result.MissingFields(); len(missing) > 0 {
				return nil, errors.NewMissingRequiredFieldError(record.ID, missing)
			}
			return nil, errors.NewMalformedSchemaError(record.ID, fmt.Errorf("%s", strings.Join(result.GetErrorMessages(), "; ")))
		}

		parsed, err := models.ParseSchema(record.SchemaJSON())
		if err != nil {
			return nil, errors.NewMalformedSchemaError(record.ID, err)
		}
		plans = append(plans, recordPlan{record: record, schema: parsed})
	}
	return plans, nil
}

func (s *Service) publishRecord(ctx context.Context, log logger.Logger, plan recordPlan) (publishResult, error) {
	handle, err := s.lease.Acquire(ctx, plan.record.ID)
	if err != nil {
		return publishResult{}, err
	}

	result, err := s.materialize(ctx, log, plan)

	if relErr := handle.Release(context.WithoutCancel(ctx), err == nil); relErr != nil {
		log.Warn("Failed to release record lease", map[string]interface{}{"error": relErr.Error()})
	}
	return result, err
}

func (s *Service) materialize(ctx context.Context, log logger.Logger, plan recordPlan) (publishResult, error) {
	var res publishResult

	res.projectURL = plan.record.ProjectURL()
	if res.projectURL == "" {
		project, err := s.projects.CreateProject(ctx, plan.record.TemplateName(), true)
		if err != nil {
			return res, err
		}
		res.projectID = project.ID
		res.projectURL = models.ProjectURL(s.config.AppURL, project.ID)
		res.projectCreated = true
		log.Info("Created Layer project", map[string]interface{}{
			"projectId":  res.projectID,
			"projectUrl": res.projectURL,
		})
	} else {
		res.projectID = models.ProjectIDFromURL(res.projectURL)
		log.Info("Using existing Layer project", map[string]interface{}{
			"projectId":  res.projectID,
			"projectUrl": res.projectURL,
		})
	}
	log = log.WithFields(map[string]interface{}{"projectId": res.projectID})

	var err error
	if s.config.Upsert && !res.projectCreated {
		err = s.upsertSchema(ctx, log, res.projectID, plan.schema, &res)
	} else {
		err = s.createSchema(ctx, log, res.projectID, plan.schema, &res)
	}
	if err != nil {
		return res, err
	}

	fields := map[string]interface{}{models.FieldStatus: models.StatusPublished}
	if res.projectCreated {
		fields[models.FieldProjectURL] = res.projectURL
	}
	if err := s.records.UpdateRecords(ctx, airtable.RecordUpdate{ID: plan.record.ID, Fields: fields}); err != nil {
		return res, err
	}

	log.Info("Record published", map[string]interface{}{
		"categoriesCreated": res.categoriesCreated,
		"fieldsCreated":     res.fieldsCreated,
	})
	return res, nil
}

func (s *Service) createSchema(ctx context.Context, log logger.Logger, projectID string, schema models.Schema, res *publishResult) error {
	for _, category := range schema {
		if _, err := s.createCategory(ctx, log, projectID, category, res); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) createCategory(ctx context.Context, log logger.Logger, projectID string, category models.Category, res *publishResult) (string, error) {
	categoryID, err := s.projects.CreateCategory(ctx, projectID, category.Name)
	if err != nil {
		return "", err
	}
	res.categoriesCreated++
	metrics.CategoriesCreated.Inc()

	catLog := log.WithFields(map[string]interface{}{"category": category.Name, "categoryId": categoryID})
	catLog.Info("Created category", nil)

	return categoryID, s.createFields(ctx, catLog, categoryID, category.Fields, res)
}

func (s *Service) createFields(ctx context.Context, log logger.Logger, categoryID string, fields []models.Field, res *publishResult) error {
	for _, field := range fields {
		if err := s.projects.CreateField(ctx, categoryID, field); err != nil {
			return err
		}
		res.fieldsCreated++
		metrics.FieldsCreated.Inc()
		log.Debug("Created field", map[string]interface{}{
			"field":      field.Name,
			"type":       field.Type,
			"hasOptions": field.HasOptions(),
		})
	}
	return nil
}

// upsertSchema reuses categories and fields that already exist under a
// normalized name and creates only what is missing.
func (s *Service) upsertSchema(ctx context.Context, log logger.Logger, projectID string, schema models.Schema, res *publishResult) error {
	existing, err := s.projects.ListCategories(ctx, projectID)
	if err != nil {
		return err
	}

	byName := make(map[string]layer.Category, len(existing))
	for _, c := range existing {
		key := models.NormalizeName(c.Name)
		if _, dup := byName[key]; !dup {
			byName[key] = c
		}
	}

	for _, category := range schema {
		key := models.NormalizeName(category.Name)
		remote, found := byName[key]
		if !found {
			categoryID, err := s.createCategory(ctx, log, projectID, category, res)
			if err != nil {
				return err
			}
			byName[key] = layer.Category{ID: categoryID, Name: category.Name}
			continue
		}
		if remote.ID == "" {
			return errors.NewContractViolationError(layer.ServiceName, fmt.Sprintf("category %q has no id", remote.Name), nil)
		}

		catLog := log.WithFields(map[string]interface{}{"category": category.Name, "categoryId": remote.ID})
		catLog.Info("Reusing existing category", nil)

		present, err := s.projects.ListFields(ctx, remote.ID)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(present))
		for _, f := range present {
			have[models.NormalizeName(f.Name)] = true
		}

		var missing []models.Field
		for _, f := range category.Fields {
			if !have[models.NormalizeName(f.Name)] {
				missing = append(missing, f)
			}
		}
		if err := s.createFields(ctx, catLog, remote.ID, missing, res); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validate(ctx context.Context, log logger.Logger, runID string, input Input) (string, error) {
	records, err := s.selectRecords(ctx, input)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		log.Info("No records to validate", nil)
		return MessageNoRecords, nil
	}

	for _, record := range records {
		recLog := log.WithFields(map[string]interface{}{
			"recordId": record.ID,
			"template": record.TemplateName(),
		})

		projectURL := record.ProjectURL()
		if projectURL == "" || strings.TrimSpace(record.SchemaJSON()) == "" {
			recLog.Warn("Skipping record: missing Layer project URL or JSON", nil)
			s.recordOutcome(ctx, ModeValidate, audit.OutcomeSkipped)
			continue
		}

		schema, err := models.ParseSchema(record.SchemaJSON())
		if err != nil {
			return "", errors.NewMalformedSchemaError(record.ID, err)
		}

		projectID := models.ProjectIDFromURL(projectURL)
		recLog = recLog.WithFields(map[string]interface{}{"projectId": projectID})

		remote, err := s.projects.ListCategories(ctx, projectID)
		if err != nil {
			return "", err
		}

		checks := CheckCategories(schema, remote)
		report := audit.ValidationReport{
			RunID:        runID,
			RecordID:     record.ID,
			TemplateName: record.TemplateName(),
			ProjectID:    projectID,
			ProjectURL:   projectURL,
			Categories:   checks,
			CheckedAt:    time.Now().UTC(),
		}
		for _, check := range checks {
			metrics.CategoryChecks.WithLabelValues(check.Outcome).Inc()
			fields := map[string]interface{}{"category": check.Name}
			switch check.Outcome {
			case OutcomeNotFound:
				report.Missing++
				recLog.Error("Category not found in Layer", fields)
			case OutcomeMismatch:
				report.Mismatched++
				fields["found"] = check.RemoteName
				recLog.Warn("Category name mismatch", fields)
			default:
				report.Matched++
				recLog.Info("Category OK", fields)
			}
		}

		s.recordOutcome(ctx, ModeValidate, "validated")
		s.auditValidation(ctx, recLog, report)
	}

	return MessageValidationCompleted, nil
}

// CheckCategories matches each schema category against the remote list by
// trimmed, case-insensitive name. The first remote match wins; the outcome is
// ok only when the raw names are identical.
func CheckCategories(schema models.Schema, remote []layer.Category) []audit.CategoryCheck {
	checks := make([]audit.CategoryCheck, 0, len(schema))
	for _, category := range schema {
		key := models.NormalizeName(category.Name)
		check := audit.CategoryCheck{Name: category.Name, Outcome: OutcomeNotFound}
		for _, rc := range remote {
			if models.NormalizeName(rc.Name) != key {
				continue
			}
			check.RemoteName = rc.Name
			if rc.Name == category.Name {
				check.Outcome = OutcomeOK
			} else {
				check.Outcome = OutcomeMismatch
			}
			break
		}
		checks = append(checks, check)
	}
	return checks
}

func (s *Service) recordOutcome(ctx context.Context, mode, outcome string) {
	metrics.RecordsProcessed.WithLabelValues(mode, outcome).Inc()
	s.obs.RecordRecord(ctx, mode, outcome)
}

func (s *Service) auditPublish(ctx context.Context, log logger.Logger, runID string, plan recordPlan, res publishResult, startedAt time.Time, outcome string, runErr error) {
	if s.publishes == nil {
		return
	}
	run := audit.PublishRun{
		RunID:             runID,
		RecordID:          plan.record.ID,
		TemplateName:      plan.record.TemplateName(),
		Mode:              publishMode(plan.record),
		ProjectID:         res.projectID,
		ProjectURL:        res.projectURL,
		ProjectCreated:    res.projectCreated,
		CategoriesCreated: res.categoriesCreated,
		FieldsCreated:     res.fieldsCreated,
		Outcome:           outcome,
		StartedAt:         startedAt.UTC(),
		FinishedAt:        time.Now().UTC(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.publishes.RecordPublish(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("Failed to write publish audit", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Service) auditValidation(ctx context.Context, log logger.Logger, report audit.ValidationReport) {
	if s.validations == nil {
		return
	}
	if err := s.validations.RecordValidation(context.WithoutCancel(ctx), report); err != nil {
		log.Warn("Failed to write validation report", map[string]interface{}{"error": err.Error()})
	}
}

// publishMode is "create" for records without a project URL, else "resolve".
func publishMode(record models.TemplateRecord) string {
	if record.ProjectURL() == "" {
		return "create"
	}
	return "resolve"
}
