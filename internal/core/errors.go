package core

// errors.go defines the error taxonomy shared by every layer.
//
// Each error carries a Kind that decides how it is surfaced:
//   - KindValidation: rejected before any upstream call (HTTP 400)
//   - KindUnauthorized / KindForbidden: credentials or ownership (401/403)
//   - KindNotFound: unknown job, configuration or document (404)
//   - KindUpstream / KindRateLimited: document store trouble, may be retryable
//   - KindJobFatal: the batch cannot proceed; the job is marked failed
//
// Row-level errors never leave the runner; they are recorded as RowError.

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// Kind classifies an error for presentation and retry decisions.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
	KindRateLimited
	KindJobFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	case KindRateLimited:
		return "rate_limited"
	case KindJobFatal:
		return "job_fatal"
	default:
		return "internal"
	}
}

var (
	// ErrNotFound is returned when a job, configuration or document does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden: resource belongs to another owner")

	// ErrUnauthorized is returned when credentials are missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimitExceeded is returned when the upstream rate limiter denied
	// every attempt within the retry budget.
	ErrRateLimitExceeded = errors.New("upstream rate limit exceeded: retry budget exhausted")

	// ErrJobNotRunnable is returned when claiming a job in a terminal state.
	ErrJobNotRunnable = errors.New("job is not runnable")

	// ErrJobClaimed is returned when another invocation holds the job's lease.
	ErrJobClaimed = errors.New("job is claimed by another runner")

	// ErrClaimLost is returned when a row update no longer matches the
	// claimed state, meaning another runner or a cancellation got there first.
	ErrClaimLost = errors.New("job claim lost")

	// ErrSourceChanged is returned when a resumed job sees a different row count.
	ErrSourceChanged = errors.New("source row count changed since job started")
)

// Error is a classified error with an operation name and retry hint.
type Error struct {
	Kind      Kind
	Op        string // Operation that failed: "sheets.read", "job.claim"
	Message   string // Optional detail; falls back to Err
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Upstream wraps a document store failure.
func Upstream(op string, err error, retryable bool) error {
	return &Error{Kind: KindUpstream, Op: op, Retryable: retryable, Err: err}
}

// Fatal wraps an error that prevents a job from continuing.
func Fatal(op string, err error) error {
	return &Error{Kind: KindJobFatal, Op: op, Err: err}
}

// validationf builds a validation error.
func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a validation error for callers outside this package.
func Validationf(format string, args ...any) error {
	return validationf(format, args...)
}

// KindOf returns the classification of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	var oor *OutOfRangeError
	var uf *UnknownFieldError
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &oor), errors.As(err, &uf), errors.As(err, &ve):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrRateLimitExceeded), errors.Is(err, ErrTooManyInvocations):
		return KindRateLimited
	case errors.Is(err, ErrJobNotRunnable), errors.Is(err, ErrJobClaimed), errors.Is(err, ErrClaimLost):
		return KindConflict
	case errors.Is(err, ErrSourceChanged):
		return KindJobFatal
	}
	return KindInternal
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) && (e.Retryable || e.Kind == KindRateLimited) {
		return true
	}
	return errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrTooManyInvocations) ||
		errors.Is(err, ErrJobClaimed)
}

// OutOfRangeError is returned by ChangeTracker when a row index falls
// outside the loaded section data.
type OutOfRangeError struct {
	Section string
	Row     int
	Len     int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("row index %d out of range for section %q (0..%d)", e.Row, e.Section, e.Len-1)
}

// UnknownFieldError is returned by ChangeTracker when a field is not part
// of the section's field list.
type UnknownFieldError struct {
	Section string
	Field   string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q in section %q", e.Field, e.Section)
}

// SubstitutionError reports placeholders that could not be replaced while
// the rest of the substitution succeeded.
type SubstitutionError struct {
	Failed map[string]error // Keyed by the text that was searched for
}

func (e *SubstitutionError) Error() string {
	return fmt.Sprintf("substitution failed for %d placeholder(s)", len(e.Failed))
}

// Warnings returns one human-readable line per failed placeholder, ordered
// by placeholder text.
func (e *SubstitutionError) Warnings() []string {
	tokens := make([]string, 0, len(e.Failed))
	for token := range e.Failed {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, fmt.Sprintf("%s: %v", token, e.Failed[token]))
	}
	return out
}
