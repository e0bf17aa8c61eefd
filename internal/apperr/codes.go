// Package apperr defines the stable error codes reported by the audit
// pipeline.
//
// Each package owns its error types; the types expose a Code so that
// transport layers (MCP tools, HTTP) can map any wrapped error to a
// user-facing category without importing every package's internals.
package apperr

import "errors"

// Code is a machine-readable error category.
type Code string

const (
	CodeUnknown             Code = "UNKNOWN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeAlreadyExists       Code = "ALREADY_EXISTS"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeUnknownStep         Code = "UNKNOWN_STEP"
	CodeMissingPrerequisite Code = "MISSING_PREREQUISITE"
	CodeIncompleteDecisions Code = "INCOMPLETE_DECISIONS"
	CodeOrphanReference     Code = "ORPHAN_REFERENCE"
	CodeNotEligible         Code = "NOT_ELIGIBLE"
	CodeRetryExhausted      Code = "RETRY_EXHAUSTED"
	CodeTransient           Code = "TRANSIENT"
	CodeProvider            Code = "PROVIDER_ERROR"
	CodeTimeout             Code = "TIMEOUT"
	CodeCanceled            Code = "CANCELED"
)

// Coder is implemented by errors that carry a Code.
type Coder interface {
	Code() Code
}

// CodeOf returns the code of the first error in err's chain that
// implements Coder, or CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeUnknown
}

// UserFacing reports whether the error should be shown to the caller as a
// tool-level error rather than treated as an infrastructure failure.
func UserFacing(err error) bool {
	switch CodeOf(err) {
	case CodeUnknown, "":
		return false
	default:
		return true
	}
}

// Sentinel is a comparable error value carrying a Code.
type Sentinel struct {
	code Code
	msg  string
}

// New returns a sentinel error with the given code and message.
func New(code Code, msg string) *Sentinel {
	return &Sentinel{code: code, msg: msg}
}

func (e *Sentinel) Error() string { return e.msg }

// Code implements Coder.
func (e *Sentinel) Code() Code { return e.code }
