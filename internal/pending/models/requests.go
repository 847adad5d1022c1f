package models

import (
	"fmt"
	"strings"
	"time"

	"enrollgate/internal/completeness"
	"enrollgate/internal/requirements"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/validation"
)

// SubmitRequest is a submission or re-submission for a national ID.
type SubmitRequest struct {
	NationalID string            `json:"national_id" validate:"required,nationalid"`
	FirstName  string            `json:"first_name" validate:"required,notblank,max=100"`
	LastName   string            `json:"last_name" validate:"required,notblank,max=100"`
	Email      string            `json:"email" validate:"omitempty,email"`
	Phone      string            `json:"phone" validate:"omitempty,max=30"`
	Modality   string            `json:"modality" validate:"required,notblank"`
	PlanOrYear string            `json:"plan_or_year" validate:"required,notblank"`
	Module     string            `json:"module" validate:"omitempty,max=20"`
	Documents  map[string]string `json:"documents"`
}

// Normalize applies business defaults and sanitizes inputs.
func (r *SubmitRequest) Normalize() {
	if r == nil {
		return
	}
	r.NationalID = string(NormalizeNationalID(r.NationalID))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Modality = strings.TrimSpace(r.Modality)
	r.PlanOrYear = strings.TrimSpace(r.PlanOrYear)
	r.Module = strings.TrimSpace(r.Module)
}

// Validate checks that the request is well-formed.
func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	_, err := ParseDocuments(r.Documents)
	return err
}

// Personal extracts the applicant data.
func (r *SubmitRequest) Personal() PersonalData {
	return PersonalData{
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		Phone:      r.Phone,
		Modality:   r.Modality,
		PlanOrYear: r.PlanOrYear,
		Module:     r.Module,
	}
}

// Refs converts the documents map after Validate has accepted it.
func (r *SubmitRequest) Refs() completeness.Refs {
	refs, _ := ParseDocuments(r.Documents)
	return refs
}

// ParseDocuments maps wire kind names to references, rejecting unknown kinds.
func ParseDocuments(docs map[string]string) (completeness.Refs, error) {
	refs := make(completeness.Refs, len(docs))
	for name, ref := range docs {
		kind, ok := requirements.ParseDocKind(name)
		if !ok {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown document kind %q", name))
		}
		refs[kind] = completeness.Reference(strings.TrimSpace(ref))
	}
	return refs, nil
}

// EvaluateRequest asks for a completeness result without touching any record.
type EvaluateRequest struct {
	Modality   string            `json:"modality" validate:"required,notblank"`
	PlanOrYear string            `json:"plan_or_year" validate:"required,notblank"`
	Module     string            `json:"module"`
	Documents  map[string]string `json:"documents"`
}

// Validate checks that the request is well-formed.
func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	_, err := ParseDocuments(r.Documents)
	return err
}

// AlarmResetRequest extends the expiry of a live registration.
type AlarmResetRequest struct {
	ExtensionDays int    `json:"extension_days" validate:"required,min=1"`
	Reason        string `json:"reason" validate:"required,notblank,max=500"`
}

// Normalize applies business defaults and sanitizes inputs.
func (r *AlarmResetRequest) Normalize() {
	if r == nil {
		return
	}
	r.Reason = strings.TrimSpace(r.Reason)
}

// Validate checks that the request is well-formed. The upper bound on
// ExtensionDays is configuration and is checked by the service.
func (r *AlarmResetRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// NotifyRequest carries operator options for an individual notification.
type NotifyRequest struct {
	Channel string `json:"channel" validate:"omitempty,oneof=email sms"`
	Message string `json:"message" validate:"max=1000"`
}

// Normalize applies business defaults and sanitizes inputs.
func (r *NotifyRequest) Normalize() {
	if r == nil {
		return
	}
	r.Channel = strings.ToLower(strings.TrimSpace(r.Channel))
	if r.Channel == "" {
		r.Channel = "email"
	}
	r.Message = strings.TrimSpace(r.Message)
}

// Validate checks that the request is well-formed.
func (r *NotifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// Options converts the request for the notification dispatcher.
func (r *NotifyRequest) Options() NotifyOptions {
	return NotifyOptions{Channel: r.Channel, Message: r.Message}
}

// ImportRecord is one registration in a bulk import, typically exported from
// another instance or a legacy spreadsheet.
type ImportRecord struct {
	SubmitRequest
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ImportRequest is a batch of records, possibly with duplicates.
type ImportRequest struct {
	Records []ImportRecord `json:"records" validate:"required,min=1,max=5000,dive"`
}

// Normalize applies business defaults and sanitizes inputs.
func (r *ImportRequest) Normalize() {
	if r == nil {
		return
	}
	for i := range r.Records {
		r.Records[i].Normalize()
		r.Records[i].State = strings.ToUpper(strings.TrimSpace(r.Records[i].State))
	}
}

// Validate checks that the request is well-formed.
func (r *ImportRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	for i, rec := range r.Records {
		if rec.State != "" && !State(rec.State).IsValid() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("records[%d]: unknown state %q", i, rec.State))
		}
		if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() || rec.ExpiresAt.IsZero() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("records[%d]: created_at, updated_at and expires_at are required", i))
		}
		if _, err := ParseDocuments(rec.Documents); err != nil {
			return err
		}
	}
	return nil
}

// Registrations converts the batch into domain records.
func (r *ImportRequest) Registrations() []*Registration {
	out := make([]*Registration, 0, len(r.Records))
	for _, rec := range r.Records {
		state := State(rec.State)
		if !state.IsValid() {
			state = StateNoDocumentation
		}
		out = append(out, &Registration{
			NationalID: NationalID(rec.NationalID),
			Personal:   rec.Personal(),
			Documents:  rec.Refs().Clone(),
			State:      state,
			CreatedAt:  rec.CreatedAt,
			UpdatedAt:  rec.UpdatedAt,
			ExpiresAt:  rec.ExpiresAt,
		})
	}
	return out
}
