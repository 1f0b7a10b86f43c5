package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input. Field names the offending request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func Validation(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func Validationf(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ContentionError reports a lock that could not be acquired in time. Safe to retry.
type ContentionError struct {
	Key string
	Err error
}

func (e *ContentionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("lock %q contended", e.Key)
	}
	return fmt.Sprintf("lock %q contended: %v", e.Key, e.Err)
}

func (e *ContentionError) Unwrap() error { return e.Err }

func Contention(key string, err error) error {
	return &ContentionError{Key: key, Err: err}
}

// ConsistencyViolation reports broken stored state detected before a mutation.
// It is never repaired in place.
type ConsistencyViolation struct {
	Scope  string
	Detail string
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("consistency violation in %s: %s", e.Scope, e.Detail)
}

func Consistency(scope string, detail string) error {
	return WithStack(&ConsistencyViolation{Scope: scope, Detail: detail})
}

// ConflictError reports a request that contradicts current state (duplicates, verified flags).
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func Conflict(reason string) error {
	return &ConflictError{Reason: reason}
}

// AccessDeniedError reports a caller not allowed to perform the action.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string { return "access denied: " + e.Reason }

func AccessDenied(reason string) error {
	return &AccessDeniedError{Reason: reason}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsContention(err error) bool {
	var target *ContentionError
	return errors.As(err, &target)
}

func IsConsistency(err error) bool {
	var target *ConsistencyViolation
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsAccessDenied(err error) bool {
	var target *AccessDeniedError
	return errors.As(err, &target)
}

// Kind names the error class of err for logs, metrics labels and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsValidation(err):
		return "validation"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case IsAccessDenied(err):
		return "access_denied"
	case IsContention(err):
		return "contention"
	case IsConsistency(err):
		return "consistency"
	default:
		return "error"
	}
}
