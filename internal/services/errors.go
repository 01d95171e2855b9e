package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/exam-session-service/internal/validator"
)

// Error kinds. Every error a service returns to callers unwraps to one of
// these, so handlers can classify with errors.Is.
var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrNotFound            = errors.New("not found")
	ErrInvalidOrExpiredOtp = errors.New("invalid or expired otp")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrValidationFailed    = validator.ErrValidation
	ErrNoActiveStudents    = errors.New("no active students")
	ErrDeadlinePassed      = errors.New("deadline passed")
)

// ServiceError carries a caller-facing message for a kind.
type ServiceError struct {
	Kind    error
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Kind
}

func newServiceError(kind error, format string, args ...any) *ServiceError {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *ServiceError {
	return newServiceError(ErrNotFound, format, args...)
}

func invalidTransition(format string, args ...any) *ServiceError {
	return newServiceError(ErrInvalidTransition, format, args...)
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Message    string `json:"message"`
}

func NewPermissionError(userID string, resourceID uint, resource, action, message string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Message:    message,
	}
}

func (e *PermissionError) Error() string {
	return e.Message
}

func (e *PermissionError) Unwrap() error {
	return ErrPermissionDenied
}

func NewValidationError(field, message string, value any) validator.ValidationErrors {
	return validator.ValidationErrors{{Field: field, Message: message, Value: value, Rule: "business_logic"}}
}

// Messages shared between operations and asserted by callers.
const (
	msgExamNotAvailable    = "Exam not found or not available"
	msgNotStarted          = "Student has not started this exam"
	msgNotTaking           = "Student is not taking in exam"
	msgAttemptClosed       = "You have already completed this exam."
	msgExamOngoing         = "Cannot change status while the exam is ongoing."
	msgPublishAfterEnd     = "Cannot publish an exam that has already ended."
	msgInvalidOtp          = "Invalid or expired OTP code"
	msgNoActiveStudents    = "No students are currently taking this exam"
	msgCannotViewExam      = "You do not have permission to view this exam."
	msgCannotSuperviseAny  = "You do not have permission to supervise any exams."
	msgCannotSuperviseExam = "You do not have permission to supervise this exam."
)
