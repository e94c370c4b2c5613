// Package errors provides structured error types used across the application.
// We prefer these over raw fmt.Errorf strings to enable reliable checks with
// errors.Is / errors.As and to carry minimal context about the failure.
//
// On top of the kind types (validation / db / external / biz) every error can
// carry a stable domain Code. Codes are what agents write into the venue
// event log and what the HTTP layer maps to response envelopes; kinds decide
// retry behavior.
package errors

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable identifier for a failure class.
type Code string

const (
	// Validation codes: caller or record supplied something unacceptable.
	CodeInvalidCoords           Code = "INVALID_COORDS"
	CodeInvalidSort             Code = "INVALID_SORT"
	CodeInvalidStatus           Code = "INVALID_STATUS"
	CodeMissingName             Code = "MISSING_NAME"
	CodeMissingCoords           Code = "MISSING_COORDS"
	CodeMissingDescriptionOrSum Code = "MISSING_DESCRIPTION_OR_SUMMARY"

	// Ontology codes: the synonym dictionary failed validation.
	CodeInvalidTags       Code = "INVALID_TAGS"
	CodeDuplicateSynonyms Code = "DUPLICATE_SYNONYMS"
	CodeMissingCanonical  Code = "MISSING_CANONICAL"

	// Transient codes: safe to retry with backoff.
	CodeProviderError Code = "PROVIDER_ERROR"
	CodeTimeout       Code = "TIMEOUT"
	CodeStaleWrite    Code = "STALE_WRITE"

	// Semantic codes: the operation ran but the outcome is a domain fact.
	CodeNotFound    Code = "NOT_FOUND"
	CodeNoSummary   Code = "NO_SUMMARY"
	CodeWeakSummary Code = "WEAK_SUMMARY"
	CodeWeakTags    Code = "WEAK_TAGS"
	CodeNoPhotos    Code = "NO_PHOTOS"

	// Fatal codes: the process cannot meaningfully continue.
	CodeFatalInvariant Code = "FATAL_INVARIANT"
	CodeFatalConfig    Code = "FATAL_CONFIG"
)

// Retryable reports whether a code belongs to the transient class.
func (c Code) Retryable() bool {
	switch c {
	case CodeProviderError, CodeTimeout, CodeStaleWrite:
		return true
	}
	return false
}

// ValidationError indicates invalid input/config/state provided by a caller/user.
type ValidationError struct {
	Op   string // where it happened (package.Function)
	Code Code   // stable classification, optional
	Msg  string // human friendly message (no PII)
	Err  error  // underlying cause (optional)
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("validation: %s: %s", e.Op, e.Msg)
}

func (e *ValidationError) Unwrap() error     { return e.Err }
func (e *ValidationError) Operation() string { return e.Op }
func (e *ValidationError) Message() string   { return e.Msg }
func (e *ValidationError) ErrCode() Code     { return e.Code }
func (e *ValidationError) Context() map[string]any {
	return map[string]any{"op": e.Op, "msg": e.Msg, "code": string(e.Code)}
}

func NewValidation(op, msg string, err error) error {
	return &ValidationError{Op: op, Msg: msg, Err: err}
}

// NewValidationCode builds a validation error with a stable code.
func NewValidationCode(op string, code Code, msg string) error {
	return &ValidationError{Op: op, Code: code, Msg: msg}
}

// DBError represents database access/operation failures.
type DBError struct {
	Op   string
	Code Code
	Msg  string
	Err  error
}

func (e *DBError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("db: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("db: %s: %s", e.Op, e.Msg)
}

func (e *DBError) Unwrap() error     { return e.Err }
func (e *DBError) Operation() string { return e.Op }
func (e *DBError) Message() string   { return e.Msg }
func (e *DBError) ErrCode() Code     { return e.Code }
func (e *DBError) Context() map[string]any {
	return map[string]any{"op": e.Op, "msg": e.Msg, "code": string(e.Code)}
}

func NewDB(op, msg string, err error) error { return &DBError{Op: op, Msg: msg, Err: err} }

// NewStaleWrite marks an optimistic-lock conflict. Callers reload and retry.
func NewStaleWrite(op string, id int64) error {
	return &DBError{Op: op, Code: CodeStaleWrite, Msg: fmt.Sprintf("stale write on venue %d", id)}
}

// ExternalAPIError represents failures in external services (HTTP APIs, SDKs, etc.).
type ExternalAPIError struct {
	Op     string
	Code   Code
	Msg    string
	Err    error
	System string // optional system name e.g. "google" / "openai"
}

func (e *ExternalAPIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	sys := e.System
	if sys == "" {
		sys = "external"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", sys, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", sys, e.Op, e.Msg)
}

func (e *ExternalAPIError) Unwrap() error     { return e.Err }
func (e *ExternalAPIError) Operation() string { return e.Op }
func (e *ExternalAPIError) Message() string   { return e.Msg }
func (e *ExternalAPIError) ErrCode() Code     { return e.Code }
func (e *ExternalAPIError) Context() map[string]any {
	return map[string]any{"op": e.Op, "msg": e.Msg, "system": e.System, "code": string(e.Code)}
}

func NewExternal(op, system, msg string, err error) error {
	return &ExternalAPIError{Op: op, System: system, Msg: msg, Err: err}
}

// NewProviderError wraps a capability failure as retryable.
func NewProviderError(op, system string, err error) error {
	return &ExternalAPIError{Op: op, System: system, Code: CodeProviderError, Msg: "provider error", Err: err}
}

// NewTimeout wraps a deadline miss as retryable.
func NewTimeout(op, system string, err error) error {
	return &ExternalAPIError{Op: op, System: system, Code: CodeTimeout, Msg: "timed out", Err: err}
}

// BizError is for domain/business logic failures that aren't programmer bugs.
type BizError struct {
	Op   string
	Code Code
	Msg  string
	Err  error
}

func (e *BizError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("biz: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("biz: %s: %s", e.Op, e.Msg)
}

func (e *BizError) Unwrap() error     { return e.Err }
func (e *BizError) Operation() string { return e.Op }
func (e *BizError) Message() string   { return e.Msg }
func (e *BizError) ErrCode() Code     { return e.Code }
func (e *BizError) Context() map[string]any {
	return map[string]any{"op": e.Op, "msg": e.Msg, "code": string(e.Code)}
}

func NewBiz(op, msg string, err error) error { return &BizError{Op: op, Msg: msg, Err: err} }

// NewBizCode builds a domain error with a stable code.
func NewBizCode(op string, code Code, msg string) error {
	return &BizError{Op: op, Code: code, Msg: msg}
}

// NewNotFound marks a lookup miss as a semantic domain fact.
func NewNotFound(op, what string, key any) error {
	return &BizError{Op: op, Code: CodeNotFound, Msg: fmt.Sprintf("%s %v not found", what, key)}
}

// coder is implemented by every error kind above.
type coder interface{ ErrCode() Code }

// CodeOf extracts the domain code from anywhere in the chain, or "".
func CodeOf(err error) Code {
	for err != nil {
		if c, ok := err.(coder); ok {
			if code := c.ErrCode(); code != "" {
				return code
			}
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// IsRetryable reports whether the chain carries a transient code.
func IsRetryable(err error) bool { return CodeOf(err).Retryable() }

// HasCode reports whether the chain carries the given code.
func HasCode(err error, code Code) bool { return CodeOf(err) == code }

// IsKind helpers: allow callers to check error kind without type assertions.
// Example: if errors.Is(err, errors.ErrValidation) { ... }
var (
	ErrValidation = &ValidationError{}
	ErrDB         = &DBError{}
	ErrExternal   = &ExternalAPIError{}
	ErrBiz        = &BizError{}
)

// Is enables errors.Is(err, ErrValidation) via errors.As semantics.
// We delegate to errors.As with the zero-value pointer of each type.
func Is(err, target error) bool {
	if err == nil || target == nil {
		return errors.Is(err, target)
	}
	switch target.(type) {
	case *ValidationError:
		var v *ValidationError
		return errors.As(err, &v)
	case *DBError:
		var d *DBError
		return errors.As(err, &d)
	case *ExternalAPIError:
		var ex *ExternalAPIError
		return errors.As(err, &ex)
	case *BizError:
		var b *BizError
		return errors.As(err, &b)
	default:
		return errors.Is(err, target)
	}
}
