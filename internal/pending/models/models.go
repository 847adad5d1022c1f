package models

import (
	"math"
	"slices"
	"strings"
	"time"

	"enrollgate/internal/completeness"
	"enrollgate/internal/requirements"
	dErrors "enrollgate/pkg/domain-errors"
)

// Audit event actions
const (
	AuditActionSubmitted  = "pending_submitted"
	AuditActionAlarmReset = "pending_alarm_reset"
	AuditActionDeleted    = "pending_deleted"
	AuditActionExpired    = "pending_expired"
	AuditActionFinalized  = "pending_finalized"
)

// PersonalData is the applicant information carried with a registration.
type PersonalData struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Modality   string `json:"modality"`
	PlanOrYear string `json:"plan_or_year"`
	Module     string `json:"module,omitempty"`
}

// FullName joins first and last names.
func (p PersonalData) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Merge overlays the non-blank fields of next onto p.
func (p PersonalData) Merge(next PersonalData) PersonalData {
	pick := func(cur, in string) string {
		if v := strings.TrimSpace(in); v != "" {
			return v
		}
		return cur
	}
	return PersonalData{
		FirstName:  pick(p.FirstName, next.FirstName),
		LastName:   pick(p.LastName, next.LastName),
		Email:      pick(p.Email, next.Email),
		Phone:      pick(p.Phone, next.Phone),
		Modality:   pick(p.Modality, next.Modality),
		PlanOrYear: pick(p.PlanOrYear, next.PlanOrYear),
		Module:     pick(p.Module, next.Module),
	}
}

// AlarmReset is one entry of the expiry extension audit trail.
type AlarmReset struct {
	At                time.Time `json:"at"`
	ExtensionDays     int       `json:"extension_days"`
	Reason            string    `json:"reason"`
	Actor             string    `json:"actor"`
	PreviousExpiresAt time.Time `json:"previous_expires_at"`
}

// Registration is an enrollment held outside the main store until its
// documentation is complete.
//
// At most one live registration exists per NationalID. Expiry is derived from
// ExpiresAt at read time and never stored. Completeness is recomputed on read.
type Registration struct {
	NationalID  NationalID
	Personal    PersonalData
	Documents   completeness.Refs
	State       State
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
	AlarmResets []AlarmReset
}

// NewRegistration creates a Registration with domain invariant checks.
func NewRegistration(nationalID NationalID, personal PersonalData, now time.Time, ttl time.Duration) (*Registration, error) {
	if nationalID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "national ID required")
	}
	if now.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "creation time required")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expiry window must be positive")
	}
	return &Registration{
		NationalID: nationalID,
		Personal:   personal,
		Documents:  completeness.Refs{},
		State:      StateNoDocumentation,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// IsExpired is true for a non-processed registration past its expiry.
// Processed registrations never expire.
func (r *Registration) IsExpired(now time.Time) bool {
	return r.State != StateProcessed && now.After(r.ExpiresAt)
}

// IsLive is true while the registration is neither expired nor processed.
func (r *Registration) IsLive(now time.Time) bool {
	return r.State != StateProcessed && !now.After(r.ExpiresAt)
}

// DaysRemaining rounds the time left up to whole days, never below zero.
func (r *Registration) DaysRemaining(now time.Time) int {
	left := r.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// Urgency classifies the registration by days remaining.
func (r *Registration) Urgency(now time.Time) Urgency {
	return ClassifyUrgency(r.DaysRemaining(now))
}

// MergeDocuments overwrites references of the same kind. Empty references and
// unknown kinds are ignored so a merge never erases a stored document.
// Returns the kinds that changed.
func (r *Registration) MergeDocuments(refs completeness.Refs) []requirements.DocKind {
	if r.Documents == nil {
		r.Documents = completeness.Refs{}
	}
	var changed []requirements.DocKind
	for k, v := range refs {
		v = completeness.Reference(strings.TrimSpace(string(v)))
		if v == "" || !k.IsValid() || r.Documents[k] == v {
			continue
		}
		r.Documents[k] = v
		changed = append(changed, k)
	}
	requirements.SortDocKinds(changed)
	return changed
}

// ExtendTo moves the expiry and records the audit entry.
func (r *Registration) ExtendTo(now time.Time, days int, reason, actor string) {
	r.AlarmResets = append(r.AlarmResets, AlarmReset{
		At:                now,
		ExtensionDays:     days,
		Reason:            reason,
		Actor:             actor,
		PreviousExpiresAt: r.ExpiresAt,
	})
	r.ExpiresAt = now.Add(time.Duration(days) * 24 * time.Hour)
	r.UpdatedAt = now
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *Registration) Clone() *Registration {
	if r == nil {
		return nil
	}
	c := *r
	c.Documents = make(completeness.Refs, len(r.Documents))
	for k, v := range r.Documents {
		c.Documents[k] = v
	}
	c.AlarmResets = slices.Clone(r.AlarmResets)
	return &c
}

// NotifyOptions carries operator choices for an individual notification.
type NotifyOptions struct {
	Channel string
	Message string
}

// ListFilter narrows listPending results.
type ListFilter struct {
	IncludeExpired bool
	State          State
	MinUrgency     Urgency
	SortByExpiry   bool
}

// Matches applies the state and urgency filters. Expiry is handled by the caller.
func (f ListFilter) Matches(r *Registration, now time.Time) bool {
	if f.State != "" && r.State != f.State {
		return false
	}
	if f.MinUrgency != "" {
		if !r.IsLive(now) || !r.Urgency(now).AtLeast(f.MinUrgency) {
			return false
		}
	}
	return true
}

// View is a registration with its read-time projections.
type View struct {
	Registration  *Registration
	Requirements  requirements.Set
	Completeness  completeness.Result
	DaysRemaining int
	Urgency       Urgency
	Expired       bool
}

// NewView evaluates r against set at now.
func NewView(r *Registration, set requirements.Set, now time.Time) *View {
	return &View{
		Registration:  r,
		Requirements:  set,
		Completeness:  completeness.Evaluate(r.Documents, set),
		DaysRemaining: r.DaysRemaining(now),
		Urgency:       r.Urgency(now),
		Expired:       r.IsExpired(now),
	}
}
