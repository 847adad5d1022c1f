package service

import (
	"context"
	"strings"

	"go.uber.org/mock/gomock"

	"enrollgate/internal/completeness"
	"enrollgate/internal/pending/models"
	"enrollgate/internal/requirements"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/testutil"
	"enrollgate/pkg/validation"
)

func (s *ServiceSuite) TestSubmitOrUpdate() {
	s.Run("creates record with seven day expiry and initial state", func() {
		view, err := s.service.SubmitOrUpdate(at(testutil.T0), nationalID, secondYear(), refs(requirements.DocIdentity))
		s.Require().NoError(err)

		reg := view.Registration
		s.Equal(nationalID, reg.NationalID)
		s.Equal(models.StateIncomplete, reg.State)
		s.Equal(testutil.T0, reg.CreatedAt)
		s.Equal(testutil.T0.Add(testutil.Week), reg.ExpiresAt)
		s.Equal(7, view.DaysRemaining)
		s.Equal(models.UrgencyNormal, view.Urgency)
		s.Equal(completeness.StatusPartial, view.Completeness.Status)
		s.Equal(6, view.Completeness.TotalRequired)
	})

	s.Run("no documents starts without documentation", func() {
		view, err := s.service.SubmitOrUpdate(at(testutil.T0), "40111222", secondYear(), nil)
		s.Require().NoError(err)
		s.Equal(models.StateNoDocumentation, view.Registration.State)
		s.Equal(completeness.StatusNone, view.Completeness.Status)
	})

	s.Run("normalizes national id separators", func() {
		_, err := s.service.SubmitOrUpdate(at(testutil.T0), "50.111.222", secondYear(), nil)
		s.Require().NoError(err)
		_, err = s.store.FindByNationalID(context.Background(), "50111222")
		s.NoError(err)
	})

	s.Run("blank national id is a validation error", func() {
		_, err := s.service.SubmitOrUpdate(at(testutil.T0), " - ", secondYear(), nil)
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("national id outside 6 to 12 alphanumerics is rejected", func() {
		for _, id := range []models.NationalID{"A", models.NationalID(strings.Repeat("7", 36)), "12345"} {
			_, err := s.service.SubmitOrUpdate(at(testutil.T0), id, secondYear(), refs(requirements.DocIdentity))
			s.requireCode(err, dErrors.CodeValidation)
			s.ErrorContains(err, validation.NationalIDMessage)
		}
		all, err := s.store.ListAll(context.Background())
		s.Require().NoError(err)
		for _, reg := range all {
			s.Len(string(reg.NationalID), 8, "only well-formed ids are stored")
		}
	})

	s.Run("unresolvable track is a validation error and nothing is stored", func() {
		p := secondYear()
		p.PlanOrYear = ""
		_, err := s.service.SubmitOrUpdate(at(testutil.T0), "60111222", p, nil)
		s.requireCode(err, dErrors.CodeValidation)

		_, err = s.store.FindByNationalID(context.Background(), "60111222")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ServiceSuite) TestRepeatedUpsertKeepsOneMergedRecord() {
	first := testutil.T0
	second := testutil.T0.Add(3 * testutil.Day)

	_, err := s.service.SubmitOrUpdate(at(first), nationalID, secondYear(),
		refs(requirements.DocIdentity, requirements.DocProofOfAddress))
	s.Require().NoError(err)

	update := models.PersonalData{Phone: "+54 11 5555 0000"}
	view, err := s.service.SubmitOrUpdate(at(second), nationalID, update,
		refs(requirements.DocPhotograph, requirements.DocBirthCertificate))
	s.Require().NoError(err)

	all, err := s.store.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().Len(all, 1)

	reg := all[0]
	s.Equal(refs(requirements.DocIdentity, requirements.DocProofOfAddress,
		requirements.DocPhotograph, requirements.DocBirthCertificate), reg.Documents)
	s.Equal(second.Add(testutil.Week), reg.ExpiresAt)
	s.Equal(first, reg.CreatedAt)
	s.Equal(second, reg.UpdatedAt)
	s.Equal("Ana", reg.Personal.FirstName, "blank fields keep stored values")
	s.Equal("+54 11 5555 0000", reg.Personal.Phone)
	s.Equal(4, view.Completeness.TotalSubmitted)
}

func (s *ServiceSuite) TestUpsertOverwritesSameKindButNeverErases() {
	_, err := s.service.SubmitOrUpdate(at(testutil.T0), nationalID, secondYear(), refs(requirements.DocIdentity))
	s.Require().NoError(err)

	view, err := s.service.SubmitOrUpdate(at(testutil.T0), nationalID, secondYear(), completeness.Refs{
		requirements.DocIdentity:   "objects/identity-v2",
		requirements.DocPhotograph: "",
	})
	s.Require().NoError(err)
	s.Equal(completeness.Reference("objects/identity-v2"), view.Registration.Documents[requirements.DocIdentity])
	s.NotContains(view.Registration.Documents, requirements.DocPhotograph)
}

func (s *ServiceSuite) TestUpsertOverExpiredRecordStartsFresh() {
	s.seed(testutil.NewRegistrationBuilder().
		WithDocuments(refs(requirements.DocIdentity)).
		WithState(models.StateIncomplete).
		Build())

	later := testutil.T0.Add(10 * testutil.Day)
	view, err := s.service.SubmitOrUpdate(at(later), nationalID, secondYear(), refs(requirements.DocPhotograph))
	s.Require().NoError(err)

	s.Equal(later, view.Registration.CreatedAt)
	s.Equal(refs(requirements.DocPhotograph), view.Registration.Documents)
	s.False(view.Expired)
}

func (s *ServiceSuite) TestProcessedRecordKeepsExpiryAndState() {
	s.seed(testutil.NewRegistrationBuilder().
		WithDocuments(baseWith(requirements.DocPartialTranscript)).
		WithState(models.StateProcessed).
		Build())

	later := testutil.T0.Add(20 * testutil.Day)
	view, err := s.service.SubmitOrUpdate(at(later), nationalID, secondYear(), refs(requirements.DocTransferRequest))
	s.Require().NoError(err)
	s.Equal(models.StateProcessed, view.Registration.State)
	s.Equal(testutil.T0.Add(testutil.Week), view.Registration.ExpiresAt)
	s.False(view.Expired)
}

func (s *ServiceSuite) TestSubmitComposite() {
	s.Run("incomplete submission stays pending", func() {
		res, err := s.service.Submit(at(testutil.T0), &models.SubmitRequest{
			NationalID: "30.111.222",
			FirstName:  "Ana",
			LastName:   "Pérez",
			Modality:   "Presencial",
			PlanOrYear: "2do año",
			Documents:  map[string]string{"dni": "objects/dni"},
		})
		s.Require().NoError(err)
		s.False(res.Finalized)
		s.Equal(models.StateIncomplete, res.View.Registration.State)
		s.Contains(res.View.Completeness.Message, "Missing:")
	})

	s.Run("complete first-year submission finalizes and leaves no pending record", func() {
		s.mockFinalizer.EXPECT().Finalize(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, reg *models.Registration) error {
				s.Equal(models.NationalID("70111222"), reg.NationalID)
				s.Equal(models.StateProcessed, reg.State)
				return nil
			})

		docs := map[string]string{}
		for k, v := range baseWith(requirements.DocCompletionCertificate, requirements.DocTransferRequest) {
			docs[string(k)] = string(v)
		}
		res, err := s.service.Submit(at(testutil.T0), &models.SubmitRequest{
			NationalID: "70111222",
			FirstName:  "Luis",
			LastName:   "Gómez",
			Modality:   "presencial",
			PlanOrYear: "1",
			Documents:  docs,
		})
		s.Require().NoError(err)
		s.True(res.Finalized)
		s.Equal(7, res.View.Completeness.TotalRequired)

		_, err = s.store.FindByNationalID(context.Background(), "70111222")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("invalid request is rejected before touching the store", func() {
		_, err := s.service.Submit(at(testutil.T0), &models.SubmitRequest{NationalID: "80111222"})
		s.requireCode(err, dErrors.CodeValidation)

		_, err = s.service.Submit(at(testutil.T0), nil)
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("unknown document kind is rejected", func() {
		_, err := s.service.Submit(at(testutil.T0), &models.SubmitRequest{
			NationalID: "80111222",
			FirstName:  "Ana",
			LastName:   "Pérez",
			Modality:   "Presencial",
			PlanOrYear: "2",
			Documents:  map[string]string{"passport_scan": "x"},
		})
		s.requireCode(err, dErrors.CodeValidation)
	})
}

func (s *ServiceSuite) TestConcurrentUpsertsOnSameKeyNeverDuplicate() {
	kinds := requirements.AllDocKinds
	res := testutil.RunConcurrent(len(kinds), func(idx int) error {
		_, err := s.service.SubmitOrUpdate(at(testutil.T0), nationalID, secondYear(), refs(kinds[idx]))
		return err
	})
	s.Equal(int32(len(kinds)), res.Successes)

	all, err := s.store.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Len(all[0].Documents, len(kinds))
}
