package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"enrollgate/internal/pending/metrics"
	"enrollgate/internal/pending/models"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/requestcontext"
)

// Get returns the registration with its read-time projections. Expired
// records are still returned with Expired set until the sweep removes them.
func (s *Service) Get(ctx context.Context, nationalID models.NationalID) (*models.View, error) {
	nationalID, err := parseNationalID(nationalID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	reg, err := s.store.FindByNationalID(ctx, nationalID)
	if err != nil {
		return nil, s.translate(ctx, "get", err)
	}
	return s.view(reg, requestcontext.Now(ctx)), nil
}

// Delete removes the registration. Returns CodeNotFound when nothing was stored.
func (s *Service) Delete(ctx context.Context, nationalID models.NationalID) (err error) {
	nationalID, err = parseNationalID(nationalID)
	if err != nil {
		return err
	}
	ctx, span := s.startSpan(ctx, "pending.delete", nationalID)
	defer func() { endSpan(span, err) }()

	return s.withKey(ctx, "delete", nationalID, func(ctx context.Context) error {
		deleted, err := s.store.Delete(ctx, nationalID)
		if err != nil {
			return s.translate(ctx, "delete", err)
		}
		if !deleted {
			return dErrors.New(dErrors.CodeNotFound, "pending registration not found")
		}
		s.metrics.IncrementDeletions(metrics.ReasonManual)
		s.logAudit(ctx, models.AuditActionDeleted, nationalID)
		return nil
	})
}

// ResetAlarm extends a live registration to now+days and appends the audit
// entry. It is the only way to extend a record without resubmitting.
func (s *Service) ResetAlarm(ctx context.Context, nationalID models.NationalID, days int, reason string) (view *models.View, err error) {
	nationalID, err = parseNationalID(nationalID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if days < 1 || days > s.maxExtensionDays {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("extension_days must be between 1 and %d", s.maxExtensionDays))
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	ctx, span := s.startSpan(ctx, "pending.reset_alarm", nationalID)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)
	err = s.withKey(ctx, "reset_alarm", nationalID, func(ctx context.Context) error {
		reg, err := s.store.FindByNationalID(ctx, nationalID)
		if err != nil {
			return s.translate(ctx, "reset_alarm", err)
		}
		if !reg.IsLive(now) {
			return dErrors.New(dErrors.CodeNotFound, "no live pending registration")
		}
		previous := reg.ExpiresAt
		reg.ExtendTo(now, days, reason, actor)
		if err := s.store.Save(ctx, reg); err != nil {
			return s.translate(ctx, "reset_alarm", err)
		}
		s.metrics.IncrementAlarmResets()
		s.logAudit(ctx, models.AuditActionAlarmReset, nationalID,
			"extension_days", days,
			"previous_expires_at", previous,
			"expires_at", reg.ExpiresAt,
		)
		view = s.view(reg, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ExpireIfStale deletes the registration when it is expired at now. The store
// re-checks expiry in the delete so a concurrent resubmission wins.
func (s *Service) ExpireIfStale(ctx context.Context, nationalID models.NationalID, now time.Time) (expired *models.Registration, deleted bool, err error) {
	err = s.withKey(ctx, "expire", nationalID, func(ctx context.Context) error {
		reg, err := s.store.FindByNationalID(ctx, nationalID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return s.translate(ctx, "expire", err)
		}
		if !reg.IsExpired(now) {
			return nil
		}
		ok, err := s.store.DeleteExpired(ctx, nationalID, now)
		if err != nil {
			return s.translate(ctx, "expire", err)
		}
		if !ok {
			return nil
		}
		s.metrics.IncrementDeletions(metrics.ReasonExpired)
		s.logAudit(ctx, models.AuditActionExpired, nationalID, "expired_at", reg.ExpiresAt)
		expired, deleted = reg, true
		return nil
	})
	return expired, deleted, err
}
