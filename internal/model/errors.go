package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Classify with errors.Is.
var (
	ErrInvalidData             = errors.New("invalid data")
	ErrPersistence             = errors.New("persistence failure")
	ErrNotFound                = errors.New("not found")
	ErrNetwork                 = errors.New("network failure")
	ErrSyncPayloadIncompatible = errors.New("sync payload incompatible")
	ErrHealthService           = errors.New("health service failure")
)

// Rule names the invariant a ValidationError reports.
type Rule string

const (
	RuleRequired          Rule = "required"
	RuleTooLong           Rule = "too_long"
	RuleNegative          Rule = "negative"
	RuleAboveCeiling      Rule = "above_ceiling"
	RuleNotPositive       Rule = "not_positive"
	RuleBelowFloor        Rule = "below_floor"
	RuleInvalidEnum       Rule = "invalid_enum"
	RuleMacroMismatch     Rule = "macro_mismatch"
	RuleCompositeEmpty    Rule = "composite_empty"
	RuleCompositeMismatch Rule = "composite_mismatch"
	RuleInvalidFormat     Rule = "invalid_format"
)

// ValidationError reports the first violated invariant of an entity.
type ValidationError struct {
	Field   string
	Rule    Rule
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidData }

func NewValidationError(field string, rule Rule, message string) *ValidationError {
	return &ValidationError{Field: field, Rule: rule, Message: message}
}

// PersistenceError wraps a durable-store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }
