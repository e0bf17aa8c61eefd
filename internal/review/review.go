// Package review reconciles a review step's AI recommendations with the
// human decisions taken on them.
//
// A review draft's content holds one list per recommendation category
// (e.g. "overlaps", "too_broad"). Each list entry becomes a Recommendation
// with the stable id "{kind}-{index}". Humans apply, edit or dismiss every
// recommendation; only when all of them are decided can the review be
// approved, and only applied or edited ones reach the finalize step.
package review

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/apperr"
)

// --- Decision status enum ---

// Status is the human verdict on a recommendation.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusEdited    Status = "edited"
	StatusDismissed Status = "dismissed"
)

// validStatuses is the set of allowed decision statuses.
var validStatuses = map[Status]bool{
	StatusApplied:   true,
	StatusEdited:    true,
	StatusDismissed: true,
}

// ValidateStatus returns an error if the status is not recognized.
func ValidateStatus(s Status) error {
	if !validStatuses[s] {
		return fmt.Errorf("invalid decision status %q: must be one of: applied, edited, dismissed", s)
	}
	return nil
}

// --- Core data structures ---

// Recommendation is one AI-suggested change inside a review draft.
type Recommendation struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	Text  string `json:"text"`
	Item  any    `json:"item,omitempty"`
}

// Decision records what a human did with a recommendation.
type Decision struct {
	Status       Status    `json:"status"`
	OriginalText string    `json:"original_text,omitempty"`
	EditedText   string    `json:"edited_text,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}

// Decisions maps recommendation ids to decisions. It is persisted as the
// sidecar of a review draft and copied onto the approved artifact.
type Decisions map[string]Decision

// ID builds a recommendation id.
func ID(kind string, index int) string {
	return kind + "-" + strconv.Itoa(index)
}

// ParseID splits a recommendation id into kind and index.
func ParseID(id string) (kind string, index int, err error) {
	i := strings.LastIndex(id, "-")
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("invalid recommendation id %q: want {kind}-{index}", id)
	}
	index, err = strconv.Atoi(id[i+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("invalid recommendation id %q: index must be a non-negative integer", id)
	}
	return id[:i], index, nil
}

// Extract lists the recommendations of a review draft in category order.
// Missing or non-list categories contribute nothing.
func Extract(content map[string]any, categories []string) []Recommendation {
	var out []Recommendation
	for _, kind := range categories {
		items, ok := content[kind].([]any)
		if !ok {
			continue
		}
		for i, item := range items {
			out = append(out, Recommendation{
				ID:    ID(kind, i),
				Kind:  kind,
				Index: i,
				Text:  itemText(item),
				Item:  item,
			})
		}
	}
	return out
}

// Find returns the recommendation with the given id.
func Find(recs []Recommendation, id string) (Recommendation, bool) {
	for _, r := range recs {
		if r.ID == id {
			return r, true
		}
	}
	return Recommendation{}, false
}

// textFields are tried in order when summarizing an object recommendation.
var textFields = []string{"text", "suggestion", "suggested", "recommendation", "description", "name", "reasoning"}

func itemText(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case map[string]any:
		for _, f := range textFields {
			if s, ok := v[f].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Sprint(item)
	}
	return string(data)
}

// --- Decisions ---

// Decide validates and builds a decision for rec. Edited decisions must
// carry the replacement text.
func Decide(rec Recommendation, status Status, editedText string, now time.Time) (Decision, error) {
	if err := ValidateStatus(status); err != nil {
		return Decision{}, err
	}
	d := Decision{Status: status, OriginalText: rec.Text, DecidedAt: now}
	if status == StatusEdited {
		if strings.TrimSpace(editedText) == "" {
			return Decision{}, fmt.Errorf("decision on %s: edited text is required when status is edited", rec.ID)
		}
		d.EditedText = editedText
	}
	return d, nil
}

// Missing returns the ids of recommendations without a decision, in
// recommendation order.
func Missing(recs []Recommendation, decisions Decisions) []string {
	var out []string
	for _, r := range recs {
		if _, ok := decisions[r.ID]; !ok {
			out = append(out, r.ID)
		}
	}
	return out
}

// CanApprove reports whether every recommendation has a decision.
// A review with zero recommendations is trivially approvable.
func CanApprove(recs []Recommendation, decisions Decisions) bool {
	return len(Missing(recs, decisions)) == 0
}

// IncompleteDecisionsError blocks approval of a review with undecided
// recommendations.
type IncompleteDecisionsError struct {
	Missing []string
}

func (e *IncompleteDecisionsError) Error() string {
	return fmt.Sprintf("%d recommendation(s) still need a decision: %s", len(e.Missing), strings.Join(e.Missing, ", "))
}

// Code implements apperr.Coder.
func (e *IncompleteDecisionsError) Code() apperr.Code { return apperr.CodeIncompleteDecisions }

// Check returns an IncompleteDecisionsError when CanApprove is false.
func Check(recs []Recommendation, decisions Decisions) error {
	if missing := Missing(recs, decisions); len(missing) > 0 {
		return &IncompleteDecisionsError{Missing: missing}
	}
	return nil
}

// --- Filtering ---

// Change is a recommendation that survived human review.
type Change struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Edited bool   `json:"edited,omitempty"`
	Item   any    `json:"item,omitempty"`
}

// ChangeSet is the filtered input of a finalize step.
type ChangeSet struct {
	Changes []Change `json:"changes"`
}

// ByKind groups changes by recommendation category.
func (cs ChangeSet) ByKind() map[string][]Change {
	out := make(map[string][]Change)
	for _, c := range cs.Changes {
		out[c.Kind] = append(out[c.Kind], c)
	}
	return out
}

// Kinds returns the categories present in the order they first appear.
func (cs ChangeSet) Kinds() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range cs.Changes {
		if !seen[c.Kind] {
			seen[c.Kind] = true
			out = append(out, c.Kind)
		}
	}
	return out
}

// Filter keeps exactly the recommendations decided as applied or edited.
// Edited ones carry the human's text instead of the original.
func Filter(recs []Recommendation, decisions Decisions) ChangeSet {
	cs := ChangeSet{Changes: []Change{}}
	for _, r := range recs {
		d, ok := decisions[r.ID]
		if !ok {
			continue
		}
		switch d.Status {
		case StatusApplied:
			cs.Changes = append(cs.Changes, Change{ID: r.ID, Kind: r.Kind, Text: r.Text, Item: r.Item})
		case StatusEdited:
			cs.Changes = append(cs.Changes, Change{ID: r.ID, Kind: r.Kind, Text: d.EditedText, Edited: true, Item: r.Item})
		}
	}
	return cs
}

// --- Sidecar encoding ---

// Decode parses a decisions sidecar. Empty input yields an empty map.
func Decode(data []byte) (Decisions, error) {
	out := Decisions{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding decisions: %w", err)
	}
	return out, nil
}

// Encode serializes decisions for storage. Empty maps encode to nil.
func (d Decisions) Encode() ([]byte, error) {
	if len(d) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding decisions: %w", err)
	}
	return data, nil
}
