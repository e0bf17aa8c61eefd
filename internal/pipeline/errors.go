package pipeline

import (
	"fmt"
	"strings"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/apperr"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
)

// MissingPrerequisiteError is returned when an instance is generated
// before every prerequisite instance is completed. It is never retried.
type MissingPrerequisiteError struct {
	Instance steps.Instance
	Blockers []steps.Instance
}

func (e *MissingPrerequisiteError) Error() string {
	names := make([]string, len(e.Blockers))
	for i, b := range e.Blockers {
		names[i] = b.String()
	}
	return fmt.Sprintf("cannot generate %s: complete %s first", e.Instance, strings.Join(names, ", "))
}

// Code implements apperr.Coder.
func (e *MissingPrerequisiteError) Code() apperr.Code { return apperr.CodeMissingPrerequisite }

// OrphanReferenceError reports a scope reference whose source entity no
// longer exists, e.g. a ranking naming a deleted pain.
type OrphanReferenceError struct {
	Kind string // "segment", "pain" or "ranking"
	ID   string
	Ref  string // what the missing entity was referenced from or as
}

func (e *OrphanReferenceError) Error() string {
	return fmt.Sprintf("orphan %s %q: %s", e.Kind, e.ID, e.Ref)
}

// Code implements apperr.Coder.
func (e *OrphanReferenceError) Code() apperr.Code { return apperr.CodeOrphanReference }

// NotEligibleError is returned for a scope the step does not instantiate
// for, such as a pain that is not in the top-set.
type NotEligibleError struct {
	Instance steps.Instance
	Reason   string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("%s is not eligible: %s", e.Instance, e.Reason)
}

// Code implements apperr.Coder.
func (e *NotEligibleError) Code() apperr.Code { return apperr.CodeNotEligible }

// invalidInput wraps a caller mistake with the INVALID_INPUT code.
type invalidInput struct{ msg string }

func (e *invalidInput) Error() string     { return e.msg }
func (e *invalidInput) Code() apperr.Code { return apperr.CodeInvalidInput }

func invalidf(format string, args ...any) error {
	return &invalidInput{msg: fmt.Sprintf(format, args...)}
}
