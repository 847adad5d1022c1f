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

// FinalizeResult reports whether the registration left the pending store.
type FinalizeResult struct {
	Finalized        bool
	AlreadyFinalized bool
	View             *models.View
}

// FinalizeIfComplete promotes a complete registration into the enrollment
// store and deletes the pending record. A Conflict from the enrollment store
// means the applicant is already enrolled and is treated as success. When the
// enrollment store is unavailable the record is kept for a later attempt.
func (s *Service) FinalizeIfComplete(ctx context.Context, nationalID models.NationalID) (res *FinalizeResult, err error) {
	nationalID, err = parseNationalID(nationalID)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "pending.finalize", nationalID)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	err = s.withKey(ctx, "finalize", nationalID, func(ctx context.Context) error {
		reg, err := s.store.FindByNationalID(ctx, nationalID)
		if err != nil {
			return s.translate(ctx, "finalize", err)
		}
		if reg.IsExpired(now) {
			return dErrors.New(dErrors.CodeNotFound, "pending registration has expired")
		}

		set := s.requirementsFor(reg.Personal)
		result := completeness.Evaluate(reg.Documents, set)
		if !result.IsComplete {
			s.metrics.IncrementFinalizations(metrics.OutcomeIncomplete)
			res = &FinalizeResult{View: models.NewView(reg, set, now)}
			return nil
		}
		if s.finalizer == nil {
			return dErrors.New(dErrors.CodeInternal, "enrollment store is not configured")
		}

		reg.State = reg.State.Advance(models.StateProcessed)
		already := false
		if err := s.finalizer.Finalize(ctx, reg); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrConflict):
				already = true
			case isUnavailable(err):
				s.metrics.IncrementFinalizations(metrics.OutcomeUnavailable)
				return s.translate(ctx, "finalize", err)
			default:
				s.metrics.IncrementFinalizations(metrics.OutcomeFailed)
				return s.translate(ctx, "finalize", err)
			}
		}

		// The enrollment exists now, so the pending record goes even if it was already gone.
		if _, err := s.store.Delete(ctx, nationalID); err != nil {
			return s.translate(ctx, "finalize", err)
		}

		outcome := metrics.OutcomeFinalized
		if already {
			outcome = metrics.OutcomeAlreadyFinalized
		}
		s.metrics.IncrementFinalizations(outcome)
		s.metrics.IncrementDeletions(metrics.ReasonFinalized)
		s.logAudit(ctx, models.AuditActionFinalized, nationalID, "outcome", outcome)
		res = &FinalizeResult{
			Finalized:        true,
			AlreadyFinalized: already,
			View:             models.NewView(reg, set, now),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
