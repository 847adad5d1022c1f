package service

import (
	"context"
	"errors"

	"enrollgate/internal/completeness"
	"enrollgate/internal/pending/metrics"
	"enrollgate/internal/pending/models"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/requestcontext"
)

// SubmitResult is the outcome of a composite submission.
type SubmitResult struct {
	View             *models.View
	Finalized        bool
	AlreadyFinalized bool
}

// Submit resolves, evaluates and upserts, then finalizes when the
// documentation is complete.
func (s *Service) Submit(ctx context.Context, req *models.SubmitRequest) (*SubmitResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	view, err := s.SubmitOrUpdate(ctx, models.NationalID(req.NationalID), req.Personal(), req.Refs())
	if err != nil {
		return nil, err
	}
	if !view.Completeness.IsComplete {
		return &SubmitResult{View: view}, nil
	}

	fin, err := s.FinalizeIfComplete(ctx, view.Registration.NationalID)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{View: fin.View, Finalized: fin.Finalized, AlreadyFinalized: fin.AlreadyFinalized}, nil
}

// SubmitOrUpdate upserts the registration for nationalID. A live record is
// merged: personal data and documents overlay the stored ones, state advances
// and the expiry slides to now+TTL unless the record is already processed.
// An expired record is replaced by a fresh one.
func (s *Service) SubmitOrUpdate(ctx context.Context, nationalID models.NationalID, personal models.PersonalData, refs completeness.Refs) (view *models.View, err error) {
	nationalID, err = parseNationalID(nationalID)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "pending.submit", nationalID)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	err = s.withKey(ctx, "submit", nationalID, func(ctx context.Context) error {
		existing, err := s.store.FindByNationalID(ctx, nationalID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			existing = nil
		case err != nil:
			return s.translate(ctx, "submit", err)
		}

		if existing != nil && existing.IsExpired(now) {
			if _, err := s.store.DeleteExpired(ctx, nationalID, now); err != nil {
				return s.translate(ctx, "submit", err)
			}
			s.metrics.IncrementDeletions(metrics.ReasonExpired)
			s.logAudit(ctx, models.AuditActionExpired, nationalID, "expired_at", existing.ExpiresAt)
			existing = nil
		}

		var reg *models.Registration
		if existing == nil {
			reg, err = models.NewRegistration(nationalID, personal, now, s.ttl)
			if err != nil {
				return err
			}
		} else {
			reg = existing
			reg.Personal = reg.Personal.Merge(personal)
		}

		set := s.requirementsFor(reg.Personal)
		if set.IsEmpty() {
			return dErrors.New(dErrors.CodeValidation, "requirements could not be determined: modality and plan_or_year must identify a known track")
		}

		changed := reg.MergeDocuments(refs)
		result := completeness.Evaluate(reg.Documents, set)
		wasProcessed := reg.State.IsTerminal()
		reg.State = reg.State.Advance(models.StateFor(result.Status))
		if !wasProcessed {
			reg.ExpiresAt = now.Add(s.ttl)
		}
		reg.UpdatedAt = now

		if err := s.store.Save(ctx, reg); err != nil {
			return s.translate(ctx, "submit", err)
		}

		s.metrics.IncrementSubmissions(string(reg.State))
		s.logAudit(ctx, models.AuditActionSubmitted, nationalID,
			"state", reg.State,
			"created", existing == nil,
			"documents_changed", len(changed),
			"total_submitted", result.TotalSubmitted,
			"total_required", result.TotalRequired,
		)
		view = models.NewView(reg, set, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}
