// Package errors provides the error taxonomy for listing tree
// reconciliation. It extends Go's standard error handling with structured
// error codes, retry classification, and operation context, so layers above
// the remote-call boundary never inspect raw transport errors.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Code represents a classified error condition. Codes are string-based for
// debuggability and natural serialization into per-row outcome records.
type Code string

const (
	// CodeNotFound indicates the targeting scope has no tree or disappeared.
	// Recoverable during reads (build from empty); fatal during mutation.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConflict indicates a concurrent mutation touched the same scope.
	// Retryable with backoff; the whole batch is resubmitted.
	CodeConflict Code = "CONFLICT"

	// CodeTransient indicates a network or availability failure, including
	// timeouts. Retryable with backoff.
	CodeTransient Code = "TRANSIENT"

	// CodeInvalid indicates the batch violates a remote structural
	// invariant, e.g. a subdivision created without its remainder.
	// Non-retryable; surfaced as a planner defect.
	CodeInvalid Code = "INVALID"

	// CodePlannerMismatch indicates a commit result did not contain an
	// identifier a later batch depends on. Non-retryable; the remaining
	// plan for the unit is aborted.
	CodePlannerMismatch Code = "PLANNER_MISMATCH"

	// CodeUnknown indicates an unclassified error. Non-retryable.
	CodeUnknown Code = "UNKNOWN"
)

// Sentinel errors for remote-call classification. Service adapters wrap
// these so Classify can recognize the condition with errors.Is.
var (
	// ErrNotFound indicates the referenced scope or tree does not exist
	ErrNotFound = errors.New("listingsync: not found")

	// ErrConflict indicates a concurrent mutation on the same scope
	ErrConflict = errors.New("listingsync: concurrent modification")

	// ErrTransient indicates a transient transport or availability failure
	ErrTransient = errors.New("listingsync: transient failure")

	// ErrInvalid indicates a structurally invalid batch
	ErrInvalid = errors.New("listingsync: invalid batch")

	// ErrPlannerMismatch indicates a missing identifier for a placeholder
	ErrPlannerMismatch = errors.New("listingsync: unresolved placeholder")
)

// Error represents a reconciliation error with context about the operation
// that failed. It wraps the underlying error with the targeting scope for
// better diagnosis.
type Error struct {
	// Op is the operation that failed (e.g. "read", "submit", "plan")
	Op string

	// Scope is the targeting scope identifier (if applicable)
	Scope string

	// Code is the classified error condition
	Code Code

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted message.
func (e *Error) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("listingsync.%s scope %s: [%s] %v", e.Op, e.Scope, e.Code, e.Err)
	}
	return fmt.Sprintf("listingsync.%s: [%s] %v", e.Op, e.Code, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the given operation, code, and underlying
// error.
func New(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

// NewScoped creates a new Error carrying the targeting scope.
func NewScoped(op, scope string, code Code, err error) *Error {
	return &Error{Op: op, Scope: scope, Code: code, Err: err}
}

// Classify maps an error to its Code. Classification happens once, at the
// reader/executor boundary; everything above treats the result as opaque.
//
// Precedence: an explicit *Error code wins, then the sentinel chain, then
// context timeouts (transient). Anything else is unknown and not retried.
func Classify(err error) Code {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrTransient):
		return CodeTransient
	case errors.Is(err, ErrInvalid):
		return CodeInvalid
	case errors.Is(err, ErrPlannerMismatch):
		return CodePlannerMismatch
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTransient
	}

	return CodeUnknown
}

// IsRetryable reports whether an error classified under the given code may
// be retried with backoff.
func IsRetryable(code Code) bool {
	return code == CodeConflict || code == CodeTransient
}

// IsNotFound checks if an error indicates an absent scope or tree.
func IsNotFound(err error) bool {
	return Classify(err) == CodeNotFound
}

// IsConflict checks if an error indicates a concurrent remote mutation.
func IsConflict(err error) bool {
	return Classify(err) == CodeConflict
}

// IsInvalid checks if an error indicates a structurally invalid batch.
func IsInvalid(err error) bool {
	return Classify(err) == CodeInvalid
}
