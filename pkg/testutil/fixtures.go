package testutil

import (
	"time"

	"enrollgate/internal/completeness"
	"enrollgate/internal/pending/models"
	"enrollgate/internal/requirements"
)

// T0 is the reference instant used by lifecycle tests.
var T0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Week is the default pending window.
const Week = 7 * 24 * time.Hour

// Day is one calendar day in tests.
const Day = 24 * time.Hour

// BaseRefs returns references for the five documents required at every level.
func BaseRefs() completeness.Refs {
	refs := completeness.Refs{}
	for _, k := range requirements.BaseDocuments {
		refs[k] = completeness.Reference("ref/" + string(k))
	}
	return refs
}

// RegistrationBuilder provides a fluent interface for building pending registrations.
type RegistrationBuilder struct {
	reg *models.Registration
}

// NewRegistrationBuilder creates a second-year presencial registration created at T0.
func NewRegistrationBuilder() *RegistrationBuilder {
	return &RegistrationBuilder{
		reg: &models.Registration{
			NationalID: "30111222",
			Personal: models.PersonalData{
				FirstName:  "Ana",
				LastName:   "Pérez",
				Email:      "ana.perez@example.com",
				Modality:   "Presencial",
				PlanOrYear: "2",
			},
			Documents: completeness.Refs{},
			State:     models.StateNoDocumentation,
			CreatedAt: T0,
			UpdatedAt: T0,
			ExpiresAt: T0.Add(Week),
		},
	}
}

func (b *RegistrationBuilder) WithNationalID(id models.NationalID) *RegistrationBuilder {
	b.reg.NationalID = id
	return b
}

func (b *RegistrationBuilder) WithPlan(modality, plan string) *RegistrationBuilder {
	b.reg.Personal.Modality = modality
	b.reg.Personal.PlanOrYear = plan
	return b
}

func (b *RegistrationBuilder) WithDocuments(refs completeness.Refs) *RegistrationBuilder {
	for k, v := range refs {
		b.reg.Documents[k] = v
	}
	return b
}

func (b *RegistrationBuilder) WithState(state models.State) *RegistrationBuilder {
	b.reg.State = state
	return b
}

// CreatedAt sets creation and update time and resets expiry to one week later.
func (b *RegistrationBuilder) CreatedAt(t time.Time) *RegistrationBuilder {
	b.reg.CreatedAt = t
	b.reg.UpdatedAt = t
	b.reg.ExpiresAt = t.Add(Week)
	return b
}

func (b *RegistrationBuilder) UpdatedAt(t time.Time) *RegistrationBuilder {
	b.reg.UpdatedAt = t
	return b
}

func (b *RegistrationBuilder) ExpiresAt(t time.Time) *RegistrationBuilder {
	b.reg.ExpiresAt = t
	return b
}

func (b *RegistrationBuilder) Build() *models.Registration {
	return b.reg.Clone()
}
