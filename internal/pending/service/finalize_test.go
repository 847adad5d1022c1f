package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/mock/gomock"

	"enrollgate/internal/pending/models"
	"enrollgate/internal/requirements"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/testutil"
)

func (s *ServiceSuite) seedComplete() {
	s.seed(testutil.NewRegistrationBuilder().
		WithDocuments(baseWith(requirements.DocPartialTranscript)).
		WithState(models.StateProcessed).
		Build())
}

func (s *ServiceSuite) TestFinalizeIfComplete() {
	s.Run("incomplete record is not finalized", func() {
		s.seed(testutil.NewRegistrationBuilder().WithDocuments(refs(requirements.DocIdentity)).Build())

		res, err := s.service.FinalizeIfComplete(at(testutil.T0), nationalID)
		s.Require().NoError(err)
		s.False(res.Finalized)
		s.Contains(res.View.Completeness.MissingLabels(), "partial transcript or transfer request")

		_, err = s.store.FindByNationalID(context.Background(), nationalID)
		s.NoError(err)
	})

	s.Run("complete record is finalized and deleted", func() {
		s.seedComplete()
		s.mockFinalizer.EXPECT().Finalize(gomock.Any(), gomock.Any()).Return(nil)

		res, err := s.service.FinalizeIfComplete(at(testutil.T0), nationalID)
		s.Require().NoError(err)
		s.True(res.Finalized)
		s.False(res.AlreadyFinalized)
		s.Equal(models.StateProcessed, res.View.Registration.State)

		_, err = s.store.FindByNationalID(context.Background(), nationalID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("conflict means already enrolled and still deletes", func() {
		s.seedComplete()
		s.mockFinalizer.EXPECT().Finalize(gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("enrollment exists: %w", sentinel.ErrConflict))

		res, err := s.service.FinalizeIfComplete(at(testutil.T0), nationalID)
		s.Require().NoError(err)
		s.True(res.Finalized)
		s.True(res.AlreadyFinalized)

		_, err = s.store.FindByNationalID(context.Background(), nationalID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unavailable enrollment store keeps the record", func() {
		s.seedComplete()
		s.mockFinalizer.EXPECT().Finalize(gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("post enrollment: %w", sentinel.ErrUnavailable))

		_, err := s.service.FinalizeIfComplete(at(testutil.T0), nationalID)
		s.requireCode(err, dErrors.CodeUnavailable)
		s.Equal(dErrors.UnavailableMessage, err.Error())

		_, err = s.store.FindByNationalID(context.Background(), nationalID)
		s.NoError(err)
	})

	s.Run("other enrollment failures are internal and keep the record", func() {
		s.seedComplete()
		s.mockFinalizer.EXPECT().Finalize(gomock.Any(), gomock.Any()).Return(errors.New("boom"))

		_, err := s.service.FinalizeIfComplete(at(testutil.T0), nationalID)
		s.requireCode(err, dErrors.CodeInternal)

		_, err = s.store.FindByNationalID(context.Background(), nationalID)
		s.NoError(err)
	})

	s.Run("absent record is not found", func() {
		_, err := s.service.FinalizeIfComplete(at(testutil.T0), "99999999")
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("expired incomplete record is not found", func() {
		s.seed(testutil.NewRegistrationBuilder().WithNationalID("88888888").Build())
		_, err := s.service.FinalizeIfComplete(at(testutil.T0.Add(8*testutil.Day)), "88888888")
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestFinalizeWithoutEnrollmentStoreIsInternal() {
	svc, err := New(s.store, requirements.NewResolver(), nil)
	s.Require().NoError(err)
	s.seedComplete()

	_, err = svc.FinalizeIfComplete(at(testutil.T0), nationalID)
	s.requireCode(err, dErrors.CodeInternal)
}
