// Package errors provides error types and classification for cargohold
// operations. It wraps underlying failures with the operation, the local
// path, and the backend involved, and sorts every failure into a small set
// of categories that drive retry and reporting decisions.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a cargohold operation error with context about what failed.
type Error struct {
	// Op is the operation that failed (e.g., "pack", "put", "download")
	Op string

	// Path is the local path or remote key the error concerns (if applicable)
	Path string

	// Backend is the transport backend involved (if applicable)
	Backend string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Path != "" && e.Backend != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Path, e.Backend, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	if e.Backend != "" {
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Backend, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithPath adds local path context to an existing error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithBackend adds backend context to an existing error.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// New creates a new Error with the given operation and underlying error.
func New(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewPathError creates a new Error with path context.
func NewPathError(op, path string, err error) *Error {
	return &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// Sentinel errors for the failure categories.
// These can be used with errors.Is() for error checking.
var (
	// ErrIO indicates a local filesystem read/write failure
	ErrIO = errors.New("i/o failure")

	// ErrSizeLimit indicates a unit exceeds a backend size ceiling
	ErrSizeLimit = errors.New("size limit exceeded")

	// ErrTransient indicates a transient network failure (timeout,
	// connection reset, throttling, server error); eligible for retry
	ErrTransient = errors.New("transient network failure")

	// ErrAuth indicates rejected or expired credentials; never retried
	ErrAuth = errors.New("authentication rejected")

	// ErrIntegrity indicates a byte-count mismatch on a completed
	// download; the partial file is discarded and a retry may succeed
	ErrIntegrity = errors.New("integrity check failed")

	// ErrNotFound indicates the remote object does not exist
	ErrNotFound = errors.New("object not found")
)

// IsIO checks if an error is a local filesystem failure.
func IsIO(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsSizeLimit checks if an error indicates a size ceiling was exceeded.
func IsSizeLimit(err error) bool {
	return errors.Is(err, ErrSizeLimit)
}

// IsTransient checks if an error is a transient network failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsAuth checks if an error is an authentication rejection.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsIntegrity checks if an error is a download integrity failure.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsNotFound checks if an error indicates a missing remote object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether a failed attempt may be retried.
// Transient network failures and integrity mismatches qualify; size
// limit violations and authentication rejections never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrIntegrity)
}

// Kind identifies a failure category for logging and persistence.
// Kinds are string-based for debuggability and natural JSON serialization.
type Kind string

const (
	// KindIO is a local filesystem failure.
	KindIO Kind = "IO"

	// KindSizeLimit is a size ceiling violation.
	KindSizeLimit Kind = "SIZE_LIMIT_EXCEEDED"

	// KindTransient is a retryable network failure.
	KindTransient Kind = "TRANSIENT_NETWORK"

	// KindAuth is an authentication rejection.
	KindAuth Kind = "AUTHENTICATION"

	// KindIntegrity is a download integrity failure.
	KindIntegrity Kind = "INTEGRITY"

	// KindNotFound is a missing remote object.
	KindNotFound Kind = "NOT_FOUND"

	// KindUnknown is an unclassified failure.
	KindUnknown Kind = "UNKNOWN"
)

// KindOf returns the failure category of err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSizeLimit):
		return KindSizeLimit
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}
