// Package clierr defines the failure taxonomy for cliprobe.
//
// Every fatal error returned by the analysis, generation, or execution
// pipeline maps to exactly one Kind, which determines the process exit code.
// Scoped failures (one category, one suite) use the same kinds but are
// recorded in their owning result instead of being returned.
package clierr

import (
	"errors"
	"fmt"
)

// Kind is a stable failure category.
type Kind string

const (
	BinaryNotFound        Kind = "BINARY_NOT_FOUND"
	NotExecutable         Kind = "NOT_EXECUTABLE"
	HelpUnavailable       Kind = "HELP_UNAVAILABLE"
	AnalysisTimeout       Kind = "ANALYSIS_TIMEOUT"
	InvalidConfiguration  Kind = "INVALID_CONFIGURATION"
	TestGenerationFailure Kind = "TEST_GENERATION_FAILURE"
	ExecutionTimeout      Kind = "EXECUTION_TIMEOUT"
	ExternalRunnerMissing Kind = "EXTERNAL_RUNNER_MISSING"
	Internal              Kind = "INTERNAL"
)

// ExitCode returns the process exit code for this kind.
func (k Kind) ExitCode() int {
	switch k {
	case InvalidConfiguration:
		return 2
	case BinaryNotFound, NotExecutable:
		return 3
	case HelpUnavailable, AnalysisTimeout:
		return 4
	case ExternalRunnerMissing:
		return 5
	default:
		return 1
	}
}

// Error is the structured error type for cliprobe failures.
type Error struct {
	Kind Kind

	// Subject names what failed: a binary path, category, or suite file.
	Subject string

	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Subject != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Subject, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same Kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Subject == "" && t.Message == ""
}

// New creates a new Error with the given kind, subject and message.
func New(kind Kind, subject, message string) *Error {
	return &Error{Kind: kind, Subject: subject, Message: message}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(kind Kind, subject, message string, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, Message: message, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err's chain contains an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// ExitCode maps any error to a process exit code; nil maps to 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
