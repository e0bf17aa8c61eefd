// Package steps defines the static graph of generation steps.
//
// A step is a unit of generation that produces one artifact per scope
// instance. Steps declare their prerequisites, the scope they fan out
// over (project, segment or pain), the JSON schema their content must
// satisfy and how to turn approved upstream artifacts into a prompt.
//
// This package follows the same design principles as the rest of the
// pipeline:
//   - SRP: types, registry, default graph and prompt building in separate files
//   - OCP: new steps are added to the graph without touching the engine
package steps

import (
	"fmt"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/apperr"
)

// --- Step keys ---

// Key identifies a step.
type Key string

const (
	StepValidation     Key = "validation"
	StepPortrait       Key = "portrait"
	StepPortraitReview Key = "portrait-review"
	StepPortraitFinal  Key = "portrait-final"
	StepSegments       Key = "segments"
	StepSegmentsReview Key = "segments-review"
	StepSegmentsFinal  Key = "segments-final"
	StepSegmentDetails Key = "segment-details"
	StepJobs           Key = "jobs"
	StepPreferences    Key = "preferences"
	StepDifficulties   Key = "difficulties"
	StepTriggers       Key = "triggers"
	StepPains          Key = "pains"
	StepPainsRanking   Key = "pains-ranking"
	StepCanvas         Key = "canvas"
	StepCanvasExtended Key = "canvas-extended"
	StepStrategy       Key = "strategy"
)

// --- Scope enum ---

// Scope says what a step fans out over.
type Scope string

const (
	ScopeNone    Scope = "none"
	ScopeSegment Scope = "segment"
	ScopePain    Scope = "pain"
)

// validScopes is the set of allowed scopes.
var validScopes = map[Scope]bool{
	ScopeNone:    true,
	ScopeSegment: true,
	ScopePain:    true,
}

// ValidateScope returns an error if the scope is not recognized.
func ValidateScope(s Scope) error {
	if !validScopes[s] {
		return fmt.Errorf("invalid scope %q: must be one of: none, segment, pain", s)
	}
	return nil
}

// FanOut reports whether the scope produces one instance per entity.
func (s Scope) FanOut() bool { return s == ScopeSegment || s == ScopePain }

// --- Kind enum ---

// Kind distinguishes plain generation from review and finalize steps.
type Kind string

const (
	KindGenerate Kind = "generate" // produce an artifact from approved inputs
	KindReview   Kind = "review"   // critique an artifact as a list of recommendations
	KindFinalize Kind = "finalize" // rewrite an artifact from accepted recommendations
)

// --- Field types ---

// FieldType is the JSON type a content field must have.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldList   FieldType = "list"
	FieldObject FieldType = "object"
	FieldNumber FieldType = "number"
	FieldAny    FieldType = "any"
)

// Field is one required top-level field of a step's content.
type Field struct {
	Name string
	Type FieldType
	// Items lists keys every object element of a list field must carry.
	Items []string
}

// Prerequisite is a dependency edge. All requires every scope instance of
// the prerequisite step to be completed rather than the matching one.
type Prerequisite struct {
	Step Key
	All  bool
}

// Def is the static definition of a step.
type Def struct {
	Key           Key
	Title         string
	Kind          Kind
	Scope         Scope
	TopOnly       bool // pain steps: only pains flagged as top
	Prerequisites []Prerequisite
	Fields        []Field
	// ReviewCategories are the recommendation lists of a review step.
	ReviewCategories []string
	// Source is the artifact a review critiques or a finalize step rewrites.
	Source Key
	// Review is the review step whose decisions feed a finalize step.
	Review Key
	// Task is the instruction given to the provider.
	Task string
	// Example is a JSON document showing the expected output shape.
	Example string
}

// Field returns the named field definition.
func (d Def) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames lists the content fields in declaration order.
func (d Def) FieldNames() []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Name
	}
	return out
}

// Content is the JSON object produced by a step.
type Content = map[string]any

// --- Instances ---

// Instance addresses one (project, step, scope) unit of work. Scope is
// empty for project-scoped steps and holds a segment or pain id otherwise.
type Instance struct {
	ProjectID string `json:"project_id"`
	Step      Key    `json:"step"`
	Scope     string `json:"scope,omitempty"`
}

func (i Instance) String() string {
	if i.Scope == "" {
		return fmt.Sprintf("%s/%s", i.ProjectID, i.Step)
	}
	return fmt.Sprintf("%s/%s[%s]", i.ProjectID, i.Step, i.Scope)
}

// AllScopes marks an aggregate instance in blocker lists.
const AllScopes = "*"

// --- Errors ---

// UnknownStepError is returned when a key is not in the registry.
type UnknownStepError struct {
	Key Key
}

func (e *UnknownStepError) Error() string { return fmt.Sprintf("unknown step %q", e.Key) }

// Code implements apperr.Coder.
func (e *UnknownStepError) Code() apperr.Code { return apperr.CodeUnknownStep }

// ContentError reports content that violates a step's schema.
type ContentError struct {
	Step    Key
	Field   string
	Problem string
}

func (e *ContentError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s content: %s", e.Step, e.Problem)
	}
	return fmt.Sprintf("invalid %s content: field %q %s", e.Step, e.Field, e.Problem)
}

// Code implements apperr.Coder.
func (e *ContentError) Code() apperr.Code { return apperr.CodeInvalidInput }
