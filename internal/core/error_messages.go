package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// # Error Codes Reference
//
// Classified errors (see errors.go) are mapped by kind or sentinel first.
// Unclassified errors fall back to case-insensitive pattern matching on the
// error text; the first matching pattern wins.
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid request: a field is missing or malformed
//	VAL002 - Row out of range: the row index is outside the loaded data
//	VAL003 - Unknown field: the column is not part of the section
//
// # Access Errors (AUTH001-AUTH099)
//
//	AUTH001 - Unauthorized: missing or invalid API key
//	AUTH002 - Forbidden: the resource belongs to another owner
//
// # Lookup Errors (NF001)
//
//	NF001 - Not found: unknown job, configuration or document
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Job finished: the job is already in a terminal state
//	JOB002 - Job busy: another invocation holds the job
//	JOB003 - Claim lost: the job changed while this invocation was running
//	JOB004 - Source changed: the row count differs from when the job started
//	JOB005 - Job failed: the batch cannot continue
//
// # Upstream Errors (UPS001-UPS099)
//
//	UPS001 - Upstream unavailable: the document service failed, try again
//	UPS002 - Upstream rejected: the document service refused the request
//	UPS003 - Timeout: the request took too long
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Upstream busy: retry budget exhausted waiting for a slot
//	RATE002 - Too many requests: the API request limit was reached
//	RATE003 - Busy: every job invocation slot is taken
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error. Check application logs for the technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message   string // What happened (user-friendly)
	Action    string // What to do about it
	Code      string // Error code for support reference
	Retryable bool   // Whether retrying the same request may succeed
}

var (
	msgInvalidRequest = UserMessage{Message: "The request is invalid", Action: "Check the highlighted fields and try again", Code: "VAL001"}
	msgRowOutOfRange  = UserMessage{Message: "Row is outside the loaded data", Action: "Reload the sheet and pick an existing row", Code: "VAL002"}
	msgUnknownField   = UserMessage{Message: "Column does not exist in this sheet", Action: "Reload the sheet to refresh its columns", Code: "VAL003"}

	msgUnauthorized = UserMessage{Message: "Missing or invalid API key", Action: "Provide a valid API key", Code: "AUTH001"}
	msgForbidden    = UserMessage{Message: "You do not have access to this resource", Action: "Use a resource you own", Code: "AUTH002"}

	msgNotFound = UserMessage{Message: "Resource not found", Action: "Verify the identifier is correct", Code: "NF001"}

	msgJobFinished    = UserMessage{Message: "Job has already finished", Action: "Start a new generation to run again", Code: "JOB001"}
	msgJobBusy        = UserMessage{Message: "Job is being processed by another invocation", Action: "Wait a moment and check the job status", Code: "JOB002", Retryable: true}
	msgClaimLost      = UserMessage{Message: "Job changed while it was being processed", Action: "Check the job status", Code: "JOB003"}
	msgSourceChanged  = UserMessage{Message: "The source sheet changed while the job was running", Action: "Start a new generation", Code: "JOB004"}
	msgJobFatal       = UserMessage{Message: "The generation cannot continue", Action: "Check the job failure reason and start a new generation", Code: "JOB005"}
	msgUpstreamDown   = UserMessage{Message: "The document service is temporarily unavailable", Action: "Please try again in a few moments", Code: "UPS001", Retryable: true}
	msgUpstreamRefuse = UserMessage{Message: "The document service rejected the request", Action: "Check document permissions and identifiers", Code: "UPS002"}
	msgTimeout        = UserMessage{Message: "Request timed out", Action: "Please try again", Code: "UPS003", Retryable: true}
	msgUpstreamBusy   = UserMessage{Message: "The document service is busy", Action: "Please wait a moment before trying again", Code: "RATE001", Retryable: true}
	msgTooMany        = UserMessage{Message: "Too many requests", Action: "Please wait a moment before trying again", Code: "RATE002", Retryable: true}
	msgBusy           = UserMessage{Message: "Too many jobs are running", Action: "Please wait a moment and run the job again", Code: "RATE003", Retryable: true}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages
// for errors that carry no classification. Order matters: specific first.
var errorPatterns = []errorPattern{
	{pattern: "context deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},
	{pattern: "connection refused", msg: msgUpstreamDown},
	{pattern: "connection reset", msg: msgUpstreamDown},
	{pattern: "rate limit", msg: msgTooMany},
	{pattern: "too many requests", msg: msgTooMany},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Classified errors
// map by kind; anything else is matched against known patterns, falling back
// to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var oor *OutOfRangeError
	var uf *UnknownFieldError
	switch {
	case errors.As(err, &oor):
		return msgRowOutOfRange
	case errors.As(err, &uf):
		return msgUnknownField
	case errors.Is(err, ErrRateLimitExceeded):
		return msgUpstreamBusy
	case errors.Is(err, ErrTooManyInvocations):
		return msgBusy
	case errors.Is(err, ErrJobNotRunnable):
		return msgJobFinished
	case errors.Is(err, ErrJobClaimed):
		return msgJobBusy
	case errors.Is(err, ErrClaimLost):
		return msgClaimLost
	case errors.Is(err, ErrSourceChanged):
		return msgSourceChanged
	}

	switch KindOf(err) {
	case KindValidation:
		return msgInvalidRequest
	case KindUnauthorized:
		return msgUnauthorized
	case KindForbidden:
		return msgForbidden
	case KindNotFound:
		return msgNotFound
	case KindRateLimited:
		return msgUpstreamBusy
	case KindJobFatal:
		return msgJobFatal
	case KindUpstream:
		if IsRetryable(err) {
			return msgUpstreamDown
		}
		return msgUpstreamRefuse
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
