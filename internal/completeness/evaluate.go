package completeness

import (
	"fmt"
	"strings"

	"enrollgate/internal/requirements"
)

// Status is the coarse documentation state of a submission.
type Status string

const (
	StatusNone     Status = "NONE"
	StatusPartial  Status = "PARTIAL"
	StatusComplete Status = "COMPLETE"
)

// Reference is an opaque handle returned by the object store.
type Reference string

// Refs maps each submitted kind to its stored reference.
type Refs map[requirements.DocKind]Reference

// Has reports whether k has a non-empty reference.
func (r Refs) Has(k requirements.DocKind) bool {
	return strings.TrimSpace(string(r[k])) != ""
}

// Clone copies r, dropping empty references.
func (r Refs) Clone() Refs {
	out := make(Refs, len(r))
	for k, v := range r {
		if strings.TrimSpace(string(v)) != "" {
			out[k] = v
		}
	}
	return out
}

// Slot is one missing requirement. Alternative is set only for the
// one-of-two group and names the temporary substitute.
type Slot struct {
	Kind        requirements.DocKind `json:"kind"`
	Alternative requirements.DocKind `json:"alternative,omitempty"`
}

// Label renders the slot for messages; the pair is named together.
func (s Slot) Label() string {
	if s.Alternative != "" {
		return s.Kind.Label() + " or " + s.Alternative.Label()
	}
	return s.Kind.Label()
}

// Kinds lists the kinds that would fill the slot.
func (s Slot) Kinds() []requirements.DocKind {
	if s.Alternative != "" {
		return []requirements.DocKind{s.Kind, s.Alternative}
	}
	return []requirements.DocKind{s.Kind}
}

// Result is derived from references and a requirement set. It is never persisted.
type Result struct {
	IsComplete     bool                   `json:"is_complete"`
	Status         Status                 `json:"status"`
	Submitted      []requirements.DocKind `json:"submitted_docs"`
	Missing        []Slot                 `json:"missing_docs"`
	TotalRequired  int                    `json:"total_required"`
	TotalSubmitted int                    `json:"total_submitted"`

	// AlternativeUsed is advisory: the group was satisfied by the substitute only.
	AlternativeUsed bool                 `json:"alternative_used"`
	SatisfiedBy     requirements.DocKind `json:"satisfied_by,omitempty"`
	Message         string               `json:"message"`
}

// MissingLabels renders each missing slot.
func (r Result) MissingLabels() []string {
	out := make([]string, len(r.Missing))
	for i, s := range r.Missing {
		out[i] = s.Label()
	}
	return out
}

// Evaluate checks refs against set. It is pure: equal inputs give equal results.
func Evaluate(refs Refs, set requirements.Set) Result {
	res := Result{
		Submitted:     []requirements.DocKind{},
		Missing:       []Slot{},
		TotalRequired: set.TotalRequired(),
	}
	if set.IsEmpty() {
		res.Status = StatusNone
		res.Message = msgUndetermined
		return res
	}

	for _, k := range set.Mandatory() {
		if refs.Has(k) {
			res.Submitted = append(res.Submitted, k)
		} else {
			res.Missing = append(res.Missing, Slot{Kind: k})
		}
	}

	groupSatisfied := true
	if g := set.Alternative; g != nil {
		switch {
		case refs.Has(g.Preferred):
			res.SatisfiedBy = g.Preferred
		case refs.Has(g.Alternative):
			res.SatisfiedBy = g.Alternative
			res.AlternativeUsed = true
		default:
			groupSatisfied = false
			res.Missing = append(res.Missing, Slot{Kind: g.Preferred, Alternative: g.Alternative})
		}
		if res.SatisfiedBy != "" {
			res.Submitted = append(res.Submitted, res.SatisfiedBy)
		}
	}

	res.TotalSubmitted = len(res.Submitted)
	res.IsComplete = res.TotalSubmitted == res.TotalRequired && groupSatisfied

	switch {
	case res.IsComplete:
		res.Status = StatusComplete
	case res.TotalSubmitted == 0:
		res.Status = StatusNone
	default:
		res.Status = StatusPartial
	}
	res.Message = message(res, set.Alternative)
	return res
}

const (
	msgUndetermined = "Requirements could not be determined yet: modality and plan or year are required."
	msgNone         = "No documentation has been submitted. The registration will remain pending until the documents are provided."
	msgComplete     = "Documentation is complete. The registration can be finalized."
)

func message(res Result, group *requirements.AlternativeGroup) string {
	switch res.Status {
	case StatusComplete:
		if res.AlternativeUsed && group != nil {
			return msgComplete + fmt.Sprintf(" Note: the %s was accepted as a temporary substitute; the %s must still be submitted.",
				group.Alternative.Label(), group.Preferred.Label())
		}
		return msgComplete
	case StatusPartial:
		return fmt.Sprintf("Documentation is incomplete (%d of %d submitted). Missing: %s.",
			res.TotalSubmitted, res.TotalRequired, strings.Join(res.MissingLabels(), ", "))
	default:
		return msgNone
	}
}
