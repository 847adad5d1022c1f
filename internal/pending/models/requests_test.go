package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollgate/internal/completeness"
	"enrollgate/internal/requirements"
	dErrors "enrollgate/pkg/domain-errors"
)

func validSubmit() *SubmitRequest {
	return &SubmitRequest{
		NationalID: "30.111.222",
		FirstName:  " Ana ",
		LastName:   "Pérez",
		Email:      "Ana@Example.com",
		Modality:   "Presencial",
		PlanOrYear: "2do año",
		Documents:  map[string]string{"dni": "ref-1", "partial_transcript": "ref-2"},
	}
}

func TestSubmitRequestNormalizeAndValidate(t *testing.T) {
	req := validSubmit()
	req.Normalize()

	require.NoError(t, req.Validate())
	assert.Equal(t, "30111222", req.NationalID)
	assert.Equal(t, "Ana", req.FirstName)
	assert.Equal(t, "ana@example.com", req.Email)
	assert.Equal(t, completeness.Refs{
		requirements.DocIdentity:          "ref-1",
		requirements.DocPartialTranscript: "ref-2",
	}, req.Refs())
}

func TestSubmitRequestValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *SubmitRequest)
		message string
	}{
		{"missing national id", func(r *SubmitRequest) { r.NationalID = "" }, "national_id is required"},
		{"short national id", func(r *SubmitRequest) { r.NationalID = "123" }, "national_id must be 6 to 12 letters or digits"},
		{"blank modality", func(r *SubmitRequest) { r.Modality = " " }, "modality is required"},
		{"bad email", func(r *SubmitRequest) { r.Email = "nope" }, "email must be a valid email"},
		{"unknown document", func(r *SubmitRequest) { r.Documents = map[string]string{"passport": "x"} }, `unknown document kind "passport"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSubmit()
			tt.mutate(req)
			req.Normalize()

			err := req.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestAlarmResetRequestValidation(t *testing.T) {
	req := &AlarmResetRequest{ExtensionDays: 7, Reason: "  waiting for transcript "}
	req.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "waiting for transcript", req.Reason)

	err := (&AlarmResetRequest{ExtensionDays: 0, Reason: "x"}).Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = (&AlarmResetRequest{ExtensionDays: 3, Reason: "   "}).Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestNotifyRequestDefaultsToEmail(t *testing.T) {
	req := &NotifyRequest{}
	req.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "email", req.Channel)

	bad := &NotifyRequest{Channel: "pigeon"}
	bad.Normalize()
	assert.Error(t, bad.Validate())
}

func TestImportRequestConvertsRecords(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	req := &ImportRequest{Records: []ImportRecord{{
		SubmitRequest: *validSubmit(),
		State:         "documentacion_incompleta",
		CreatedAt:     created,
		UpdatedAt:     created.Add(time.Hour),
		ExpiresAt:     created.Add(7 * 24 * time.Hour),
	}}}
	req.Normalize()
	require.NoError(t, req.Validate())

	regs := req.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, NationalID("30111222"), regs[0].NationalID)
	assert.Equal(t, StateIncomplete, regs[0].State)
	assert.Equal(t, created.Add(time.Hour), regs[0].UpdatedAt)
}

func TestImportRequestRejectsMissingTimestamps(t *testing.T) {
	req := &ImportRequest{Records: []ImportRecord{{SubmitRequest: *validSubmit()}}}
	req.Normalize()
	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "records[0]")
}
