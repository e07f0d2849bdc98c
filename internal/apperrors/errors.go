// Package apperrors provides the structured error taxonomy shared across
// auggie-index: Source, Store, Indexer, tools, and the server surface all
// report failures through AppError so that callers can branch on Kind
// instead of parsing messages.
package apperrors

import "fmt"

// Kind names an error category callers can branch on.
type Kind string

const (
	// KindConfig covers missing credentials, unknown store/source types,
	// and bad CLI flag combinations. Surfaced with a non-zero exit.
	KindConfig Kind = "CONFIG"

	// KindNotFound covers a named index that is absent, or a requested
	// file that does not exist. Returned as a distinguished result, not
	// panicked on, wherever the caller reasonably expects "missing".
	KindNotFound Kind = "NOT_FOUND"

	// KindTransport covers network/IO failures against a Source or a
	// Store.
	KindTransport Kind = "TRANSPORT"

	// KindIntegrity covers an unparseable state file or one missing
	// required fields. Fatal for the operation; never auto-repaired.
	KindIntegrity Kind = "INTEGRITY"

	// KindSourceMismatch covers a Source bound to a client disagreeing
	// with the stored SourceMetadata's type.
	KindSourceMismatch Kind = "SOURCE_MISMATCH"

	// KindSearchOnlyDenied covers a tool requiring a Source being
	// invoked without one bound.
	KindSearchOnlyDenied Kind = "SEARCH_ONLY_DENIED"

	// KindRateLimited covers a rate-limit response propagated from an
	// upstream Source.
	KindRateLimited Kind = "RATE_LIMITED"

	// KindForbidden covers an authorization failure propagated from an
	// upstream Source.
	KindForbidden Kind = "FORBIDDEN"
)

// AppError is the structured error type used throughout the module.
type AppError struct {
	Kind      Kind
	Message   string
	Cause     error
	Details   map[string]string
	Retryable bool
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, &AppError{Kind: KindNotFound}) style checks,
// matching solely on Kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key-value detail and returns the error for chaining.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func new(kind Kind, message string, cause error, retryable bool) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause, Retryable: retryable}
}

// ConfigError constructs a KindConfig error.
func ConfigError(message string, cause error) *AppError {
	return new(KindConfig, message, cause, false)
}

// NotFound constructs a KindNotFound error.
func NotFound(message string, cause error) *AppError {
	return new(KindNotFound, message, cause, false)
}

// Transport constructs a KindTransport error. Transport errors are
// retried once by the transport's own defaults before being surfaced
// here, so by the time callers see one it has already exhausted that
// retry.
func Transport(message string, cause error) *AppError {
	return new(KindTransport, message, cause, true)
}

// Integrity constructs a KindIntegrity error.
func Integrity(message string, cause error) *AppError {
	return new(KindIntegrity, message, cause, false)
}

// SourceMismatch constructs a KindSourceMismatch error.
func SourceMismatch(message string) *AppError {
	return new(KindSourceMismatch, message, nil, false)
}

// SearchOnlyDenied constructs a KindSearchOnlyDenied error.
func SearchOnlyDenied(operation string) *AppError {
	return new(KindSearchOnlyDenied, operation+" requires a bound source; index is search-only", nil, false)
}

// RateLimited constructs a KindRateLimited error.
func RateLimited(message string, cause error) *AppError {
	return new(KindRateLimited, message, cause, true)
}

// Forbidden constructs a KindForbidden error.
func Forbidden(message string, cause error) *AppError {
	return new(KindForbidden, message, cause, false)
}

// Is reports whether err (or any error in its chain) carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *AppError
	for err != nil {
		if a, ok := err.(*AppError); ok {
			ae = a
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ae != nil && ae.Kind == kind
}

// ExitCode translates an error into the CLI exit code convention:
// 2 = usage/config error, 1 = other runtime error, 0 = success (no error).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if Is(err, KindConfig) {
		return 2
	}
	return 1
}
