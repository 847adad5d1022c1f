package requirements

import (
	"slices"
	"sync"
)

// AlternativeGroup is satisfied by exactly one of its two kinds.
type AlternativeGroup struct {
	Preferred   DocKind `json:"preferred"`
	Alternative DocKind `json:"alternative"`
	Description string  `json:"description"`
}

// Contains reports whether k is a member of the group.
func (g AlternativeGroup) Contains(k DocKind) bool {
	return k == g.Preferred || k == g.Alternative
}

// Set is the documentation a (modality, plan, module) tuple requires.
// Values returned by the Resolver are copies and safe to modify.
type Set struct {
	Modality    Modality          `json:"modality,omitempty"`
	Plan        PlanKey           `json:"plan,omitempty"`
	Module      string            `json:"module,omitempty"`
	Base        []DocKind         `json:"base"`
	Additional  []DocKind         `json:"additional"`
	Alternative *AlternativeGroup `json:"alternative_group,omitempty"`
}

// IsEmpty is true when requirements could not be determined.
func (s Set) IsEmpty() bool {
	return len(s.Base) == 0 && len(s.Additional) == 0 && s.Alternative == nil
}

// TotalRequired counts the alternative pair as a single slot.
func (s Set) TotalRequired() int {
	n := len(s.Base) + len(s.Additional)
	if s.Alternative != nil {
		n++
	}
	return n
}

// Mandatory returns base followed by additional kinds.
func (s Set) Mandatory() []DocKind {
	out := make([]DocKind, 0, len(s.Base)+len(s.Additional))
	out = append(out, s.Base...)
	return append(out, s.Additional...)
}

// Kinds lists every kind mentioned by the set, both alternative members included.
func (s Set) Kinds() []DocKind {
	out := s.Mandatory()
	if s.Alternative != nil {
		out = append(out, s.Alternative.Preferred, s.Alternative.Alternative)
	}
	return out
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	c := s
	c.Base = slices.Clone(s.Base)
	c.Additional = slices.Clone(s.Additional)
	if s.Alternative != nil {
		g := *s.Alternative
		c.Alternative = &g
	}
	return c
}

// Rule binds a requirement shape to a study level. An empty Module matches any module.
type Rule struct {
	Modality Modality
	Plan     PlanKey
	Module   string
	Entry    bool
}

// BaseDocuments are required at every level.
var BaseDocuments = []DocKind{
	DocIdentity,
	DocProofOfAddress,
	DocMedicalFitness,
	DocBirthCertificate,
	DocPhotograph,
}

// EntryDocuments are required, both of them, at the entry level of a modality.
var EntryDocuments = []DocKind{
	DocCompletionCertificate,
	DocTransferRequest,
}

// ContinuingGroup applies to every level above entry.
var ContinuingGroup = AlternativeGroup{
	Preferred:   DocPartialTranscript,
	Alternative: DocTransferRequest,
	Description: "partial transcript, or a transfer request as a temporary substitute",
}

// DefaultRules has one entry level per modality.
var DefaultRules = []Rule{
	{Modality: ModalityPresencial, Plan: "1", Entry: true},
	{Modality: ModalityPresencial, Plan: "2"},
	{Modality: ModalityPresencial, Plan: "3"},
	{Modality: ModalityPresencial, Plan: "4"},
	{Modality: ModalityPresencial, Plan: "5"},
	{Modality: ModalityPresencial, Plan: "6"},
	{Modality: ModalitySemipresencial, Plan: "A", Entry: true},
	{Modality: ModalitySemipresencial, Plan: "B"},
	{Modality: ModalitySemipresencial, Plan: "C"},
}

type cacheKey struct {
	modality Modality
	plan     PlanKey
	module   string
}

// Resolver maps (modality, plan or year, module) to a requirement Set.
// It is safe for concurrent use.
type Resolver struct {
	rules []Rule
	cache sync.Map // cacheKey -> Set
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRules replaces the default rule table.
func WithRules(rules []Rule) Option {
	return func(r *Resolver) {
		r.rules = slices.Clone(rules)
	}
}

// NewResolver builds a resolver over DefaultRules.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{rules: DefaultRules}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the requirement set for the given labels. Labels are matched
// case-insensitively and accept numeric codes as well as display names. Empty or
// unrecognized modality or plan yields an empty Set.
func (r *Resolver) Resolve(modality, planOrYear, module string) Set {
	m, ok := ParseModality(modality)
	if !ok {
		return Set{}
	}
	p, ok := ParsePlan(m, planOrYear)
	if !ok {
		return Set{}
	}
	key := cacheKey{modality: m, plan: p, module: normalizeModule(module)}

	if cached, ok := r.cache.Load(key); ok {
		return cached.(Set).Clone()
	}

	rule, ok := r.match(key)
	if !ok {
		return Set{}
	}
	set := build(rule, key)
	r.cache.Store(key, set)
	return set.Clone()
}

// match prefers a module-specific rule over a wildcard one.
func (r *Resolver) match(key cacheKey) (Rule, bool) {
	var wildcard *Rule
	for i := range r.rules {
		rule := r.rules[i]
		if rule.Modality != key.modality || rule.Plan != key.plan {
			continue
		}
		if rule.Module != "" && rule.Module == key.module {
			return rule, true
		}
		if rule.Module == "" && wildcard == nil {
			wildcard = &r.rules[i]
		}
	}
	if wildcard == nil {
		return Rule{}, false
	}
	return *wildcard, true
}

func build(rule Rule, key cacheKey) Set {
	set := Set{
		Modality:   key.modality,
		Plan:       key.plan,
		Module:     key.module,
		Base:       slices.Clone(BaseDocuments),
		Additional: []DocKind{},
	}
	if rule.Entry {
		set.Additional = slices.Clone(EntryDocuments)
		return set
	}
	g := ContinuingGroup
	set.Alternative = &g
	return set
}
