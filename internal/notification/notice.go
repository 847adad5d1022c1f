// Package notification dispatches pending registration notices. The engine
// computes missing documents and days remaining; the dispatcher owns transport.
package notification

import (
	"time"

	"github.com/google/uuid"

	"enrollgate/internal/pending/models"
)

// Kind identifies the notice type carried on the wire.
type Kind string

const (
	KindReminder Kind = "pending_reminder"
	KindNotice   Kind = "pending_notice"
	KindExpired  Kind = "pending_expired"
)

// Notice is the payload published for one applicant.
type Notice struct {
	ID                  uuid.UUID `json:"id"`
	Kind                Kind      `json:"kind"`
	NationalID          string    `json:"national_id"`
	FullName            string    `json:"full_name"`
	Email               string    `json:"email,omitempty"`
	Phone               string    `json:"phone,omitempty"`
	Channel             string    `json:"channel,omitempty"`
	State               string    `json:"state"`
	MissingDocs         []string  `json:"missing_docs"`
	DaysRemaining       int       `json:"days_remaining"`
	Urgency             string    `json:"urgency,omitempty"`
	ExpiresAt           time.Time `json:"expires_at"`
	CompletenessMessage string    `json:"completeness_message,omitempty"`
	Message             string    `json:"message,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewNotice builds a notice from a computed view.
func NewNotice(kind Kind, view *models.View, now time.Time) Notice {
	reg := view.Registration
	return Notice{
		ID:                  uuid.New(),
		Kind:                kind,
		NationalID:          string(reg.NationalID),
		FullName:            reg.Personal.FullName(),
		Email:               reg.Personal.Email,
		Phone:               reg.Personal.Phone,
		State:               string(reg.State),
		MissingDocs:         view.Completeness.MissingLabels(),
		DaysRemaining:       view.DaysRemaining,
		Urgency:             string(view.Urgency),
		ExpiresAt:           reg.ExpiresAt,
		CompletenessMessage: view.Completeness.Message,
		CreatedAt:           now,
	}
}

// ExpiredNotice is the deletion event for a record removed by the sweep.
func ExpiredNotice(reg *models.Registration, now time.Time) Notice {
	return Notice{
		ID:          uuid.New(),
		Kind:        KindExpired,
		NationalID:  string(reg.NationalID),
		FullName:    reg.Personal.FullName(),
		Email:       reg.Personal.Email,
		Phone:       reg.Personal.Phone,
		State:       string(reg.State),
		MissingDocs: []string{},
		ExpiresAt:   reg.ExpiresAt,
		CreatedAt:   now,
	}
}

// FilterByUrgency keeps live views at least as urgent as min.
func FilterByUrgency(views []*models.View, min models.Urgency) []*models.View {
	out := make([]*models.View, 0, len(views))
	for _, v := range views {
		if v == nil || v.Expired || v.Registration.State.IsTerminal() {
			continue
		}
		if v.Urgency.AtLeast(min) {
			out = append(out, v)
		}
	}
	return out
}
