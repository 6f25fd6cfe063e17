package domain

import "strings"

// Kind classifies every failure the core can report. Callers branch on the
// kind, never on message text.
type Kind string

const (
	// KindDataUnavailable means no inline payload and no active dataset.
	KindDataUnavailable Kind = "data_unavailable"
	// KindInvalidInput means a malformed upload (empty, inconsistent columns).
	KindInvalidInput Kind = "invalid_input"
	// KindNotFound means an operation referenced an unknown dataset id.
	KindNotFound Kind = "not_found"
	// KindSyntax means the code still failed to parse after normalization.
	KindSyntax Kind = "syntax_error"
	// KindCapabilityDenied means the code attempted a disallowed operation.
	KindCapabilityDenied Kind = "capability_denied"
	// KindResourceExceeded means the memory ceiling was breached.
	KindResourceExceeded Kind = "resource_exceeded"
	// KindTimedOut means the wall-clock ceiling was breached.
	KindTimedOut Kind = "timed_out"
	// KindRuntimeFailure is any other uncaught failure during execution.
	KindRuntimeFailure Kind = "runtime_failure"
)

// Error is the structured error crossing the core boundary. Message carries
// the underlying cause; Hint carries a researcher-facing remediation.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e.Hint == "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind) + ": " + e.Message + " (" + e.Hint + ")"
}

// NewError builds a typed error with a kind-appropriate hint.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Hint: hintFor(kind, message)}
}

// KindOf extracts the kind from an error, defaulting unknown errors to
// RuntimeFailure so nothing unclassified leaks out of the core.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindRuntimeFailure
}

// AsError coerces any error into a structured one.
func AsError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return NewError(KindRuntimeFailure, err.Error())
}

// hintFor derives a remediation hint by keyword-matching the failure
// message, the same table the researcher-facing UI shows.
func hintFor(kind Kind, message string) string {
	switch kind {
	case KindDataUnavailable:
		return "Upload a dataset or activate one before running an analysis."
	case KindInvalidInput:
		return "Check that the upload has at least one row and a consistent column set."
	case KindNotFound:
		return "List datasets to find a valid identifier."
	case KindSyntax:
		return "The code could not be parsed; regenerate or edit it before retrying."
	case KindCapabilityDenied:
		return "Only the bundled analysis libraries are available inside the sandbox."
	case KindResourceExceeded:
		return "Retry with a smaller dataset or a narrower analysis."
	case KindTimedOut:
		return "Simplify the analysis or reduce the data volume, then retry."
	}

	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "sample size") || strings.Contains(msg, "insufficient"):
		return "Insufficient sample size. Consider a non-parametric alternative or collect more data."
	case strings.Contains(msg, "normality"):
		return "The data may not meet normality assumptions. Consider a Shapiro-Wilk check or a non-parametric test."
	case strings.Contains(msg, "missing") || strings.Contains(msg, "nan"):
		return "Missing data detected. Review completeness or consider imputation."
	case strings.Contains(msg, "convergence"):
		return "Model convergence issue. Check for multicollinearity or consider regularization."
	case strings.Contains(msg, "unknown column") || strings.Contains(msg, "no such column"):
		return "Check the column name against the dataset's column list."
	default:
		return "Review data quality and the test's assumptions, then retry."
	}
}
