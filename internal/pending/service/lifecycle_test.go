package service

import (
	"context"
	"time"

	"enrollgate/internal/pending/models"
	"enrollgate/internal/requirements"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/requestcontext"
	"enrollgate/pkg/testutil"
)

func (s *ServiceSuite) TestExpiryWindow() {
	s.Run("untouched record is eligible after seven days", func() {
		s.seed(testutil.NewRegistrationBuilder().Build())

		_, deleted, err := s.service.ExpireIfStale(context.Background(), nationalID, testutil.T0.Add(testutil.Week))
		s.Require().NoError(err)
		s.False(deleted, "expiry is strictly after expiresAt")

		reg, deleted, err := s.service.ExpireIfStale(context.Background(), nationalID, testutil.T0.Add(testutil.Week+time.Minute))
		s.Require().NoError(err)
		s.True(deleted)
		s.Equal(nationalID, reg.NationalID)

		_, err = s.store.FindByNationalID(context.Background(), nationalID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("reset at day six keeps record alive at day eight", func() {
		s.seed(testutil.NewRegistrationBuilder().Build())

		_, err := s.service.ResetAlarm(at(testutil.T0.Add(6*testutil.Day)), nationalID, 7, "waiting for transcript")
		s.Require().NoError(err)

		_, deleted, err := s.service.ExpireIfStale(context.Background(), nationalID, testutil.T0.Add(8*testutil.Day))
		s.Require().NoError(err)
		s.False(deleted)
	})

	s.Run("processed record never expires", func() {
		s.seed(testutil.NewRegistrationBuilder().WithNationalID("40111222").WithState(models.StateProcessed).Build())

		_, deleted, err := s.service.ExpireIfStale(context.Background(), "40111222", testutil.T0.Add(60*testutil.Day))
		s.Require().NoError(err)
		s.False(deleted)
	})

	s.Run("absent record is a no-op", func() {
		_, deleted, err := s.service.ExpireIfStale(context.Background(), "99999999", testutil.T0)
		s.Require().NoError(err)
		s.False(deleted)
	})
}

func (s *ServiceSuite) TestResetAlarm() {
	s.Run("appends audit entry with operator", func() {
		s.seed(testutil.NewRegistrationBuilder().Build())
		now := testutil.T0.Add(6 * testutil.Day)
		ctx := requestcontext.WithActor(at(now), "op-17")

		view, err := s.service.ResetAlarm(ctx, nationalID, 7, "  waiting for transcript ")
		s.Require().NoError(err)

		reg := view.Registration
		s.Equal(now.Add(testutil.Week), reg.ExpiresAt)
		s.Require().Len(reg.AlarmResets, 1)
		entry := reg.AlarmResets[0]
		s.Equal(now, entry.At)
		s.Equal(7, entry.ExtensionDays)
		s.Equal("waiting for transcript", entry.Reason)
		s.Equal("op-17", entry.Actor)
		s.Equal(testutil.T0.Add(testutil.Week), entry.PreviousExpiresAt)
	})

	s.Run("defaults actor to system", func() {
		view, err := s.service.ResetAlarm(at(testutil.T0.Add(6*testutil.Day)), nationalID, 2, "again")
		s.Require().NoError(err)
		s.Require().Len(view.Registration.AlarmResets, 2)
		s.Equal(requestcontext.DefaultActor, view.Registration.AlarmResets[1].Actor)
	})

	s.Run("rejects out of range days and blank reason", func() {
		for _, days := range []int{0, -1, 31} {
			_, err := s.service.ResetAlarm(at(testutil.T0), nationalID, days, "reason")
			s.requireCode(err, dErrors.CodeValidation)
		}
		_, err := s.service.ResetAlarm(at(testutil.T0), nationalID, 3, "   ")
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("absent, expired or processed record is not found", func() {
		_, err := s.service.ResetAlarm(at(testutil.T0), "99999999", 3, "reason")
		s.requireCode(err, dErrors.CodeNotFound)

		s.seed(testutil.NewRegistrationBuilder().WithNationalID("40111222").Build())
		_, err = s.service.ResetAlarm(at(testutil.T0.Add(9*testutil.Day)), "40111222", 3, "reason")
		s.requireCode(err, dErrors.CodeNotFound)

		s.seed(testutil.NewRegistrationBuilder().WithNationalID("50111222").WithState(models.StateProcessed).Build())
		_, err = s.service.ResetAlarm(at(testutil.T0), "50111222", 3, "reason")
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestGetAndDelete() {
	s.seed(testutil.NewRegistrationBuilder().WithDocuments(refs(requirements.DocIdentity)).Build())

	s.Run("get recomputes completeness on read", func() {
		view, err := s.service.Get(at(testutil.T0.Add(5*testutil.Day)), nationalID)
		s.Require().NoError(err)
		s.Equal(1, view.Completeness.TotalSubmitted)
		s.Equal(2, view.DaysRemaining)
		s.Equal(models.UrgencyUrgent, view.Urgency)
	})

	s.Run("get flags expired records", func() {
		view, err := s.service.Get(at(testutil.T0.Add(8*testutil.Day)), nationalID)
		s.Require().NoError(err)
		s.True(view.Expired)
		s.Equal(0, view.DaysRemaining)
	})

	s.Run("delete removes and then reports not found", func() {
		s.Require().NoError(s.service.Delete(at(testutil.T0), nationalID))
		s.requireCode(s.service.Delete(at(testutil.T0), nationalID), dErrors.CodeNotFound)

		_, err := s.service.Get(at(testutil.T0), nationalID)
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestLockTimeoutSurfacesUnavailable() {
	s.seed(testutil.NewRegistrationBuilder().Build())

	release, err := s.locker.Lock(context.Background(), string(nationalID))
	s.Require().NoError(err)
	defer func() { release() }()

	_, err = s.service.SubmitOrUpdate(at(testutil.T0), nationalID, secondYear(), refs(requirements.DocIdentity))
	s.requireCode(err, dErrors.CodeUnavailable)
	s.Equal(dErrors.UnavailableMessage, err.Error())

	_, err = s.service.ResetAlarm(at(testutil.T0), nationalID, 3, "reason")
	s.requireCode(err, dErrors.CodeUnavailable)

	s.requireCode(s.service.Delete(at(testutil.T0), nationalID), dErrors.CodeUnavailable)

	release()
	release = func() {}
	_, err = s.service.ResetAlarm(at(testutil.T0), nationalID, 3, "reason")
	s.NoError(err)
}
