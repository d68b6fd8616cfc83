package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler turns publisher errors into Zeebe job failures.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError reports err on the job. Publisher errors are never retried,
// so anything with a zero retry budget is thrown as a BPMN error and the
// process model decides what happens next.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})

	if bpmnErr.Retries > 0 && job.Retries > 0 {
		h.failJob(ctx, client, job, bpmnErr)
		return
	}
	h.throwBPMNError(ctx, client, job, bpmnErr)
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(bpmnErr.Retries)).
		ErrorMessage(bpmnErr.Message)

	withVars, err := cmd.VariablesFromString(bpmnErr.variablesJSON())
	if err != nil {
		h.logSendError(job, err)
		if _, err := cmd.Send(ctx); err != nil {
			h.logSendError(job, err)
		}
		return
	}
	if _, err := withVars.Send(ctx); err != nil {
		h.logSendError(job, err)
	}
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	withVars, err := cmd.VariablesFromString(bpmnErr.variablesJSON())
	if err != nil {
		h.logSendError(job, err)
		if _, err := cmd.Send(ctx); err != nil {
			h.logSendError(job, err)
		}
		return
	}
	if _, err := withVars.Send(ctx); err != nil {
		h.logSendError(job, err)
	}
}

func (h *ErrorHandler) logSendError(job entities.Job, err error) {
	h.logger.Error("Failed to report job error to Zeebe", map[string]interface{}{
		"jobKey": job.Key,
		"error":  err.Error(),
	})
}

func (e *BPMNError) variablesJSON() string {
	data, err := json.Marshal(e.ToErrorVariables())
	if err != nil {
		return "{}"
	}
	return string(data)
}
