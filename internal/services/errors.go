package services

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by services. Handlers map these onto HTTP
// status codes; everything else surfaces as an internal error.
var (
	// Template errors
	ErrTemplateNotFound     = errors.New("template not found")
	ErrTemplateNotPublished = errors.New("template is not published")
	ErrTemplateNotEditable  = errors.New("template cannot be edited after attempts exist")
	ErrTemplateNoQuestions  = errors.New("template has no questions")
	ErrWindowNotOpen        = errors.New("exam window is not open")
	ErrWindowClosed         = errors.New("exam window has closed")

	// Question errors
	ErrQuestionNotFound     = errors.New("question not found")
	ErrQuestionNotInAttempt = errors.New("question is not part of this attempt")

	// Attempt errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptNotActive        = errors.New("attempt is not active")
	ErrAttemptNotPaused        = errors.New("attempt is not paused")
	ErrAttemptAlreadySubmitted = errors.New("attempt has already been submitted")
	ErrAttemptExpired          = errors.New("attempt deadline has passed")
	ErrActiveAttemptExists     = errors.New("an active attempt already exists for this template")
	ErrAttemptLimitExceeded    = errors.New("maximum attempts exceeded")
	ErrInvalidStateTransition  = errors.New("invalid attempt state transition")

	// Answer errors
	ErrAnswerNotFound  = errors.New("answer not found")
	ErrAlreadyAnswered = errors.New("question has already been answered")

	// Grading errors
	ErrGradingNotAllowed  = errors.New("attempt is not ready for grading")
	ErrScoreOutOfRange    = errors.New("score is out of range")
	ErrAnswerAutoGraded   = errors.New("answer was auto-graded and cannot be regraded manually")
	ErrNoUngradedAnswers  = errors.New("no answers awaiting manual grading")

	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Generic errors
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrValidationFailed = errors.New("validation failed")
)

// PermissionError carries the who/what/why of a denied operation.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrForbidden
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// BusinessRuleError wraps a sentinel with request context.
type BusinessRuleError struct {
	Rule    error
	Message string
}

func (e *BusinessRuleError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Rule.Error(), e.Message)
	}
	return e.Rule.Error()
}

func (e *BusinessRuleError) Unwrap() error {
	return e.Rule
}

func NewBusinessRuleError(rule error, format string, args ...interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
	}
}

// ValidationError is a single field failure surfaced to handlers.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}
