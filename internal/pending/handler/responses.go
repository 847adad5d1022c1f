package handler

import (
	"time"

	"enrollgate/internal/completeness"
	"enrollgate/internal/pending/models"
	"enrollgate/internal/requirements"
)

// RequirementsResponse is returned for a requirement lookup.
type RequirementsResponse struct {
	Requirements  requirements.Set `json:"requirements"`
	TotalRequired int              `json:"total_required"`
	Determined    bool             `json:"determined"`
}

// RecordResponse is a pending registration with its read-time projections.
type RecordResponse struct {
	NationalID    string              `json:"national_id"`
	Personal      models.PersonalData `json:"personal"`
	Documents     map[string]string   `json:"documents"`
	State         models.State        `json:"state"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	ExpiresAt     time.Time           `json:"expires_at"`
	DaysRemaining int                 `json:"days_remaining"`
	Urgency       models.Urgency      `json:"urgency"`
	Expired       bool                `json:"expired"`
	Requirements  requirements.Set    `json:"requirements"`
	Completeness  completeness.Result `json:"completeness"`
	AlarmResets   []models.AlarmReset `json:"alarm_resets,omitempty"`
}

// SubmitResponse is returned by submissions, uploads and finalization.
type SubmitResponse struct {
	Finalized        bool            `json:"finalized"`
	AlreadyFinalized bool            `json:"already_finalized,omitempty"`
	Record           *RecordResponse `json:"record"`
}

// ListResponse is returned when listing pending registrations.
type ListResponse struct {
	Records []*RecordResponse `json:"records"`
	Total   int               `json:"total"`
}

// NotifyResponse reports how many notices were dispatched.
type NotifyResponse struct {
	Sent int `json:"sent"`
}

func toRecordResponse(v *models.View) *RecordResponse {
	if v == nil || v.Registration == nil {
		return nil
	}
	r := v.Registration
	docs := make(map[string]string, len(r.Documents))
	for k, ref := range r.Documents {
		docs[string(k)] = string(ref)
	}
	return &RecordResponse{
		NationalID:    string(r.NationalID),
		Personal:      r.Personal,
		Documents:     docs,
		State:         r.State,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		ExpiresAt:     r.ExpiresAt,
		DaysRemaining: v.DaysRemaining,
		Urgency:       v.Urgency,
		Expired:       v.Expired,
		Requirements:  v.Requirements,
		Completeness:  v.Completeness,
		AlarmResets:   r.AlarmResets,
	}
}

func toListResponse(views []*models.View) *ListResponse {
	records := make([]*RecordResponse, 0, len(views))
	for _, v := range views {
		if rec := toRecordResponse(v); rec != nil {
			records = append(records, rec)
		}
	}
	return &ListResponse{Records: records, Total: len(records)}
}
