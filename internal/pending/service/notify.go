package service

import (
	"context"

	"enrollgate/internal/pending/models"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/requestcontext"
)

// NotifyOne sends an individual notification for a live registration with
// the missing documents and days remaining computed at now.
func (s *Service) NotifyOne(ctx context.Context, nationalID models.NationalID, opts models.NotifyOptions) (err error) {
	if s.notifier == nil {
		return dErrors.New(dErrors.CodeInternal, "notifications are not configured")
	}
	view, err := s.Get(ctx, nationalID)
	if err != nil {
		return err
	}
	if !view.Registration.IsLive(requestcontext.Now(ctx)) {
		return dErrors.New(dErrors.CodeNotFound, "no live pending registration")
	}

	ctx, span := s.startSpan(ctx, "pending.notify", view.Registration.NationalID)
	defer func() { endSpan(span, err) }()

	if err := s.notifier.NotifyIndividual(ctx, view, opts); err != nil {
		return s.translate(ctx, "notify", err)
	}
	s.metrics.IncrementReminders(string(view.Urgency))
	return nil
}

// NotifyPending sends one batch covering every live registration at least as
// urgent as minUrgency. Returns how many notices were dispatched.
func (s *Service) NotifyPending(ctx context.Context, minUrgency models.Urgency) (sent int, err error) {
	if s.notifier == nil {
		return 0, dErrors.New(dErrors.CodeInternal, "notifications are not configured")
	}
	if minUrgency != "" && !minUrgency.IsValid() {
		return 0, dErrors.New(dErrors.CodeValidation, "urgency must be one of normal, urgent, critical")
	}
	views, err := s.List(ctx, models.ListFilter{MinUrgency: minUrgency, SortByExpiry: true})
	if err != nil {
		return 0, err
	}
	live := views[:0]
	for _, v := range views {
		if !v.Registration.State.IsTerminal() {
			live = append(live, v)
		}
	}
	if len(live) == 0 {
		return 0, nil
	}

	ctx, span := s.startSpan(ctx, "pending.notify_batch", "")
	defer func() { endSpan(span, err) }()

	sent, err = s.notifier.NotifyBatch(ctx, live, minUrgency)
	if err != nil {
		return sent, s.translate(ctx, "notify_batch", err)
	}
	for _, v := range live[:min(sent, len(live))] {
		s.metrics.IncrementReminders(string(v.Urgency))
	}
	return sent, nil
}
