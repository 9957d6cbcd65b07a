// Package errors provides the permit workflow error taxonomy and its BPMN mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Validation
const (
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
)

// Authorization
const (
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeStageLocked      ErrorCode = "STAGE_LOCKED"
	ErrCodeStageNotComplete ErrorCode = "STAGE_NOT_COMPLETE"
)

// Business rule
const (
	ErrCodeIncompleteStage   ErrorCode = "INCOMPLETE_STAGE"
	ErrCodeTerminalStage     ErrorCode = "TERMINAL_STAGE"
	ErrCodeDuplicateSchedule ErrorCode = "DUPLICATE_SCHEDULE"
	ErrCodeNoneAvailable     ErrorCode = "NONE_AVAILABLE"
	ErrCodeInvalidState      ErrorCode = "INVALID_STATE"
)

// Concurrency and infrastructure
const (
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, kept out of Details for infrastructure errors.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code, so the sentinels below
// work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound           = &StandardError{Code: ErrCodeNotFound}
	ErrValidationFailed   = &StandardError{Code: ErrCodeValidationFailed}
	ErrForbidden          = &StandardError{Code: ErrCodeForbidden}
	ErrStageLocked        = &StandardError{Code: ErrCodeStageLocked}
	ErrStageNotComplete   = &StandardError{Code: ErrCodeStageNotComplete}
	ErrIncompleteStage    = &StandardError{Code: ErrCodeIncompleteStage}
	ErrTerminalStage      = &StandardError{Code: ErrCodeTerminalStage}
	ErrDuplicateSchedule  = &StandardError{Code: ErrCodeDuplicateSchedule}
	ErrNoneAvailable      = &StandardError{Code: ErrCodeNoneAvailable}
	ErrInvalidState       = &StandardError{Code: ErrCodeInvalidState}
	ErrConflict           = &StandardError{Code: ErrCodeConflict}
	ErrStorageUnavailable = &StandardError{Code: ErrCodeStorageUnavailable}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
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

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
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

func newError(code ErrorCode, message, details string) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError reports an unknown stage, requirement, application, schedule or inspector.
func NewNotFoundError(kind, id string) *StandardError {
	e := newError(ErrCodeNotFound, fmt.Sprintf("%s not found", kind), fmt.Sprintf("%sId: %s", kind, id))
	e.Metadata = map[string]interface{}{"kind": kind, "id": id}
	return e
}

// NewValidationError reports malformed job input.
func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Input validation failed", details)
}

// NewForbiddenError reports that the actor lacks the role or ownership for the action.
func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "Actor is not allowed to perform this action", details)
}

// NewStageLockedError reports access to a stage beyond the application's current one.
func NewStageLockedError(stageID string, stageOrder, currentOrder int) *StandardError {
	e := newError(ErrCodeStageLocked, "Stage is not yet reachable",
		fmt.Sprintf("stage %s has order %d, application is at order %d", stageID, stageOrder, currentOrder))
	e.Metadata = map[string]interface{}{"stageId": stageID, "stageOrder": stageOrder, "currentOrder": currentOrder}
	return e
}

// NewStageNotCompleteError reports a proceed attempt while mandatory requirements are open.
func NewStageNotCompleteError(stageID string, missing []string) *StandardError {
	e := newError(ErrCodeStageNotComplete, "Current stage is not complete",
		fmt.Sprintf("stage %s is missing mandatory requirements: %s", stageID, strings.Join(missing, ", ")))
	e.Metadata = map[string]interface{}{"stageId": stageID, "missingRequirements": missing}
	return e
}

// NewIncompleteStageError reports an advance attempt blocked by mandatory requirements.
func NewIncompleteStageError(stageID string, missing []string) *StandardError {
	e := newError(ErrCodeIncompleteStage, "Mandatory requirements of the current stage are incomplete",
		fmt.Sprintf("stage %s is missing: %s", stageID, strings.Join(missing, ", ")))
	e.Metadata = map[string]interface{}{"stageId": stageID, "missingRequirements": missing}
	return e
}

// NewTerminalStageError reports that there is no stage after stageID.
func NewTerminalStageError(stageID string) *StandardError {
	return newError(ErrCodeTerminalStage, "Application is already at its final stage", fmt.Sprintf("stageId: %s", stageID))
}

// NewDuplicateScheduleError reports a second live booking of the same inspection type.
func NewDuplicateScheduleError(applicationID, inspectionType, existingID string) *StandardError {
	e := newError(ErrCodeDuplicateSchedule, "Inspection already scheduled for this application",
		fmt.Sprintf("applicationId: %s, inspectionType: %s, scheduleId: %s", applicationID, inspectionType, existingID))
	e.Metadata = map[string]interface{}{"scheduleId": existingID}
	return e
}

// NewNoneAvailableError reports that no inspector can take the inspection on that date.
func NewNoneAvailableError(inspectionType, district, date string) *StandardError {
	return newError(ErrCodeNoneAvailable, "No inspector available on that date",
		fmt.Sprintf("inspectionType: %s, district: %s, date: %s", inspectionType, district, date))
}

// NewInvalidStateError reports a transition not allowed from the current state.
func NewInvalidStateError(entity, current, wanted string) *StandardError {
	return newError(ErrCodeInvalidState, fmt.Sprintf("%s cannot move to %s", entity, wanted),
		fmt.Sprintf("current state: %s", current))
}

// NewConflictError reports a lost optimistic-concurrency race. The caller should re-read.
func NewConflictError(entity, id string) *StandardError {
	return newError(ErrCodeConflict, fmt.Sprintf("%s was modified concurrently", entity), fmt.Sprintf("%sId: %s", entity, id))
}

// NewStorageUnavailableError wraps a persistence failure. The message stays generic;
// the cause is only reachable through Unwrap for logging.
func NewStorageUnavailableError(err error) *StandardError {
	e := newError(ErrCodeStorageUnavailable, "Storage temporarily unavailable", "")
	e.Retryable = true
	e.cause = err
	return e
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *StandardError {
	e := newError(ErrCodeInternal, "Unexpected error", err.Error())
	e.cause = err
	return e
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes used in the process models.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeNotFound:           "NOT_FOUND",
	ErrCodeValidationFailed:   "VALIDATION_FAILED",
	ErrCodeForbidden:          "FORBIDDEN",
	ErrCodeStageLocked:        "STAGE_LOCKED",
	ErrCodeStageNotComplete:   "STAGE_NOT_COMPLETE",
	ErrCodeIncompleteStage:    "INCOMPLETE_STAGE",
	ErrCodeTerminalStage:      "TERMINAL_STAGE",
	ErrCodeDuplicateSchedule:  "DUPLICATE_SCHEDULE",
	ErrCodeNoneAvailable:      "NONE_AVAILABLE",
	ErrCodeInvalidState:       "INVALID_STATE",
	ErrCodeConflict:           "CONFLICT",
	ErrCodeStorageUnavailable: "STORAGE_UNAVAILABLE",
}

// GetRetryCount returns how many times Zeebe should retry a job failing with code.
// Only infrastructure failures are retried; everything else is routed by the process model.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStorageUnavailable:
		return 3
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"errorCategory":     GetErrorCategory(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard extracts a StandardError from err, wrapping unknown errors as internal.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// CodeOf returns the error code carried by err, or "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsStandard(err).Code
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the taxonomy bucket of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeNotFound, ErrCodeValidationFailed:
		return "VALIDATION"
	case ErrCodeForbidden, ErrCodeStageLocked, ErrCodeStageNotComplete:
		return "AUTHORIZATION"
	case ErrCodeIncompleteStage, ErrCodeTerminalStage, ErrCodeDuplicateSchedule, ErrCodeNoneAvailable, ErrCodeInvalidState:
		return "BUSINESS_RULE"
	case ErrCodeConflict:
		return "CONCURRENCY"
	case ErrCodeStorageUnavailable:
		return "INFRASTRUCTURE"
	default:
		return "OTHER"
	}
}
