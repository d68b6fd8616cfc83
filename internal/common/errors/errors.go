// Package errors provides the standardized error model used by every
// publisher invocation surface (CLI, HTTP trigger, Zeebe job).
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeMissingRequiredField    ErrorCode = "MISSING_REQUIRED_FIELD"
	ErrCodeMalformedSchema         ErrorCode = "MALFORMED_SCHEMA"
	ErrCodeRemoteContractViolation ErrorCode = "REMOTE_CONTRACT_VIOLATION"
	ErrCodeRemoteRequestFailed     ErrorCode = "REMOTE_REQUEST_FAILED"
	ErrCodeLeaseUnavailable        ErrorCode = "LEASE_UNAVAILABLE"
	ErrCodeInvalidInput            ErrorCode = "INVALID_INPUT"
	ErrCodeInternal                ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
}

// WithMetadata attaches a diagnostic key to the error and returns it.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for job variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewMissingRequiredFieldError reports a Template Record lacking a required field.
func NewMissingRequiredFieldError(recordID string, fields []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingRequiredField,
		Message:   "Missing required field",
		Details:   fmt.Sprintf("record %s: %s", recordID, strings.Join(fields, ", ")),
		Metadata:  map[string]interface{}{"recordId": recordID, "fields": fields},
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedSchemaError reports a JSON payload that cannot be parsed into a schema.
func NewMalformedSchemaError(recordID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedSchema,
		Message:   "Malformed template schema",
		Details:   fmt.Sprintf("record %s: %s", recordID, err.Error()),
		Metadata:  map[string]interface{}{"recordId": recordID},
		Timestamp: time.Now().UTC(),
	}
}

// NewContractViolationError reports a response whose shape does not match
// what the remote API promises. The raw payload is kept for diagnosis.
func NewContractViolationError(service, details string, raw []byte) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteContractViolation,
		Message:   fmt.Sprintf("%s API contract violation", service),
		Details:   fmt.Sprintf("%s; payload: %s", details, truncate(string(raw), 2048)),
		Metadata:  map[string]interface{}{"service": service},
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteRequestError reports a transport failure or a non-2xx response.
// status is 0 when no response was received.
func NewRemoteRequestError(service, operation string, status int, body []byte, err error) *StandardError {
	details := fmt.Sprintf("%s %s", service, operation)
	if status != 0 {
		details += fmt.Sprintf(" (status %d): %s", status, truncate(string(body), 2048))
	}
	if err != nil {
		details += ": " + err.Error()
	}
	return &StandardError{
		Code:      ErrCodeRemoteRequestFailed,
		Message:   fmt.Sprintf("%s request failed", service),
		Details:   details,
		Metadata:  map[string]interface{}{"service": service, "operation": operation, "status": status},
		Timestamp: time.Now().UTC(),
	}
}

func NewLeaseUnavailableError(recordID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLeaseUnavailable,
		Message:   "Record is being processed by another run",
		Details:   fmt.Sprintf("record %s", recordID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid invocation input",
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Conversion
// ==========================

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// CodeOf returns the code of err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	return Normalize(err).Code
}

// HTTPStatus maps an error code onto the invocation status code.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeMissingRequiredField, ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// GetRetryCount returns the retry budget for a code. Remote calls are never
// retried, so every code maps to zero.
func GetRetryCount(code ErrorCode) int {
	return 0
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   GetRetryCount(stdErr.Code),
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"statusCode":        HTTPStatus(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory returns a coarse category used as a metrics label.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeMissingRequiredField, ErrCodeMalformedSchema, ErrCodeInvalidInput:
		return "VALIDATION"
	case ErrCodeRemoteContractViolation, ErrCodeRemoteRequestFailed:
		return "REMOTE"
	case ErrCodeLeaseUnavailable:
		return "CONCURRENCY"
	default:
		return "OTHER"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
