package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/mock/gomock"

	"enrollgate/internal/pending/models"
	"enrollgate/internal/pending/service/mocks"
	"enrollgate/internal/requirements"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/testutil"
)

func ids(views []*models.View) []models.NationalID {
	out := make([]models.NationalID, len(views))
	for i, v := range views {
		out[i] = v.Registration.NationalID
	}
	return out
}

func (s *ServiceSuite) seedMixed() {
	// Insertion order: late expiry, early expiry, already expired, processed.
	s.seed(testutil.NewRegistrationBuilder().WithNationalID("10000001").CreatedAt(testutil.T0.Add(2 * testutil.Day)).Build())
	s.seed(testutil.NewRegistrationBuilder().WithNationalID("10000002").Build())
	s.seed(testutil.NewRegistrationBuilder().WithNationalID("10000003").CreatedAt(testutil.T0.Add(-10 * testutil.Day)).Build())
	s.seed(testutil.NewRegistrationBuilder().WithNationalID("10000004").WithState(models.StateProcessed).
		WithDocuments(baseWith(requirements.DocPartialTranscript)).Build())
}

func (s *ServiceSuite) TestList() {
	s.seedMixed()
	now := testutil.T0.Add(5 * testutil.Day)

	s.Run("hides expired records in insertion order", func() {
		views, err := s.service.List(at(now), models.ListFilter{})
		s.Require().NoError(err)
		s.Equal([]models.NationalID{"10000001", "10000002", "10000004"}, ids(views))
	})

	s.Run("includes expired on request", func() {
		views, err := s.service.List(at(now), models.ListFilter{IncludeExpired: true})
		s.Require().NoError(err)
		s.Len(views, 4)
		s.True(views[2].Expired)
	})

	s.Run("sorts by expiry", func() {
		views, err := s.service.List(at(now), models.ListFilter{SortByExpiry: true, IncludeExpired: true})
		s.Require().NoError(err)
		s.Equal([]models.NationalID{"10000003", "10000002", "10000004", "10000001"}, ids(views))
	})

	s.Run("filters by state and urgency", func() {
		views, err := s.service.List(at(now), models.ListFilter{State: models.StateProcessed})
		s.Require().NoError(err)
		s.Equal([]models.NationalID{"10000004"}, ids(views))

		views, err = s.service.List(at(now), models.ListFilter{MinUrgency: models.UrgencyUrgent})
		s.Require().NoError(err)
		s.Equal([]models.NationalID{"10000002"}, ids(views))
	})
}

func (s *ServiceSuite) TestNotifyOne() {
	s.seed(testutil.NewRegistrationBuilder().WithDocuments(refs(requirements.DocIdentity)).Build())
	opts := models.NotifyOptions{Channel: "email", Message: "please bring your transcript"}

	s.Run("passes the computed view to the dispatcher", func() {
		s.mockNotifier.EXPECT().NotifyIndividual(gomock.Any(), gomock.Any(), opts).
			DoAndReturn(func(_ context.Context, v *models.View, _ models.NotifyOptions) error {
				s.Equal(nationalID, v.Registration.NationalID)
				s.Equal(1, v.DaysRemaining)
				s.Equal(models.UrgencyCritical, v.Urgency)
				s.NotEmpty(v.Completeness.Missing)
				return nil
			})
		s.NoError(s.service.NotifyOne(at(testutil.T0.Add(6*testutil.Day)), nationalID, opts))
	})

	s.Run("dispatcher outage is unavailable", func() {
		s.mockNotifier.EXPECT().NotifyIndividual(gomock.Any(), gomock.Any(), opts).
			Return(fmt.Errorf("produce: %w", sentinel.ErrUnavailable))
		err := s.service.NotifyOne(at(testutil.T0), nationalID, opts)
		s.requireCode(err, dErrors.CodeUnavailable)
	})

	s.Run("expired record is not notified", func() {
		err := s.service.NotifyOne(at(testutil.T0.Add(9*testutil.Day)), nationalID, opts)
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestNotifyPending() {
	s.seedMixed()
	now := testutil.T0.Add(5 * testutil.Day)

	s.mockNotifier.EXPECT().NotifyBatch(gomock.Any(), gomock.Any(), models.UrgencyUrgent).
		DoAndReturn(func(_ context.Context, views []*models.View, _ models.Urgency) (int, error) {
			s.Equal([]models.NationalID{"10000002"}, ids(views))
			return len(views), nil
		})

	sent, err := s.service.NotifyPending(at(now), models.UrgencyUrgent)
	s.Require().NoError(err)
	s.Equal(1, sent)

	_, err = s.service.NotifyPending(at(now), "whenever")
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestNotifyPendingSkipsDispatcherWhenNothingMatches() {
	sent, err := s.service.NotifyPending(at(testutil.T0), models.UrgencyCritical)
	s.Require().NoError(err)
	s.Zero(sent)
}

func (s *ServiceSuite) TestImportResolvesDuplicatesByRecency() {
	stored := testutil.NewRegistrationBuilder().WithNationalID("20000001").UpdatedAt(testutil.T0.Add(2 * testutil.Day)).Build()
	s.seed(stored)

	record := func(id string, updated time.Time, phone string) models.ImportRecord {
		return models.ImportRecord{
			SubmitRequest: models.SubmitRequest{
				NationalID: id, FirstName: "Ana", LastName: "Pérez", Phone: phone,
				Modality: "Presencial", PlanOrYear: "2",
				Documents: map[string]string{"identity_document": "objects/" + id},
			},
			CreatedAt: testutil.T0,
			UpdatedAt: updated,
			ExpiresAt: updated.Add(testutil.Week),
		}
	}

	res, err := s.service.Import(at(testutil.T0), &models.ImportRequest{Records: []models.ImportRecord{
		record("20000002", testutil.T0.Add(3*testutil.Day), "newest"),
		record("20000002", testutil.T0.Add(1*testutil.Day), "older"),
		record("20000001", testutil.T0.Add(1*testutil.Day), "stale"),
		record("20000003", testutil.T0, "only"),
	}})
	s.Require().NoError(err)
	s.Equal(2, res.Imported)
	s.Equal(2, res.Discarded)

	got, err := s.store.FindByNationalID(context.Background(), "20000002")
	s.Require().NoError(err)
	s.Equal("newest", got.Personal.Phone)
	s.Equal(models.StateIncomplete, got.State)

	got, err = s.store.FindByNationalID(context.Background(), "20000001")
	s.Require().NoError(err)
	s.Empty(got.Personal.Phone, "stored record is newer than the imported one")

	_, err = s.service.Import(at(testutil.T0), &models.ImportRequest{})
	s.requireCode(err, dErrors.CodeValidation)
}

func importRecord(id, state string, updated time.Time, docs map[string]string) models.ImportRecord {
	return models.ImportRecord{
		SubmitRequest: models.SubmitRequest{
			NationalID: id, FirstName: "Ana", LastName: "Pérez",
			Modality: "Presencial", PlanOrYear: "2",
			Documents: docs,
		},
		State:     state,
		CreatedAt: testutil.T0,
		UpdatedAt: updated,
		ExpiresAt: updated.Add(testutil.Week),
	}
}

func (s *ServiceSuite) TestImportDerivesStateFromDocuments() {
	res, err := s.service.Import(at(testutil.T0), &models.ImportRequest{Records: []models.ImportRecord{
		importRecord("20000010", "PROCESADO", testutil.T0, map[string]string{"identity_document": "objects/id"}),
	}})
	s.Require().NoError(err)
	s.Equal(1, res.Imported)

	got, err := s.store.FindByNationalID(context.Background(), "20000010")
	s.Require().NoError(err)
	s.Equal(models.StateIncomplete, got.State)

	reg, deleted, err := s.service.ExpireIfStale(context.Background(), "20000010", testutil.T0.Add(60*testutil.Day))
	s.Require().NoError(err)
	s.True(deleted, "an incomplete import must still expire")
	s.Equal(models.StateIncomplete, reg.State)

	s.Run("complete documentation keeps the processed state", func() {
		docs := map[string]string{}
		for k, v := range baseWith(requirements.DocPartialTranscript) {
			docs[string(k)] = string(v)
		}
		_, err := s.service.Import(at(testutil.T0), &models.ImportRequest{Records: []models.ImportRecord{
			importRecord("20000011", "", testutil.T0, docs),
		}})
		s.Require().NoError(err)
		got, err := s.store.FindByNationalID(context.Background(), "20000011")
		s.Require().NoError(err)
		s.Equal(models.StateProcessed, got.State)
	})
}

func (s *ServiceSuite) TestImportNeverOverwritesProcessedRecords() {
	processed := testutil.NewRegistrationBuilder().WithNationalID("20000020").
		WithDocuments(baseWith(requirements.DocPartialTranscript)).
		WithState(models.StateProcessed).
		Build()
	s.seed(processed)

	res, err := s.service.Import(at(testutil.T0), &models.ImportRequest{Records: []models.ImportRecord{
		importRecord("20000020", "SIN_DOCUMENTACION", testutil.T0.Add(3*testutil.Day), nil),
	}})
	s.Require().NoError(err)
	s.Zero(res.Imported)
	s.Equal(1, res.Discarded)

	got, err := s.store.FindByNationalID(context.Background(), "20000020")
	s.Require().NoError(err)
	s.Equal(models.StateProcessed, got.State)
	s.Equal(processed.Documents, got.Documents)
	s.Equal(processed.UpdatedAt, got.UpdatedAt)
}

func (s *ServiceSuite) TestImportMergesIntoLiveRecord() {
	s.seed(testutil.NewRegistrationBuilder().WithNationalID("20000030").
		WithDocuments(refs(requirements.DocIdentity, requirements.DocPhotograph)).
		WithState(models.StateIncomplete).
		Build())

	updated := testutil.T0.Add(2 * testutil.Day)
	res, err := s.service.Import(at(testutil.T0.Add(testutil.Day)), &models.ImportRequest{Records: []models.ImportRecord{
		importRecord("20000030", "SIN_DOCUMENTACION", updated, map[string]string{"medical_fitness": "objects/medical"}),
	}})
	s.Require().NoError(err)
	s.Equal(1, res.Imported)

	got, err := s.store.FindByNationalID(context.Background(), "20000030")
	s.Require().NoError(err)
	s.Equal(models.StateIncomplete, got.State, "state never regresses")
	s.Len(got.Documents, 3)
	s.True(got.Documents.Has(requirements.DocIdentity))
	s.True(got.Documents.Has(requirements.DocMedicalFitness))
	s.Equal(updated, got.UpdatedAt)
	s.Equal("ana.perez@example.com", got.Personal.Email, "blank imported fields keep stored values")
}

func (s *ServiceSuite) TestStoreFailuresAreTranslatedOnce() {
	mockStore := mocks.NewMockStore(s.ctrl)
	svc, err := New(mockStore, requirements.NewResolver(), nil, WithMetrics(s.metrics))
	s.Require().NoError(err)

	s.Run("unavailable", func() {
		mockStore.EXPECT().FindByNationalID(gomock.Any(), nationalID).
			Return(nil, fmt.Errorf("find: %w: %w", sentinel.ErrUnavailable, context.DeadlineExceeded))
		_, err := svc.Get(at(testutil.T0), nationalID)
		s.requireCode(err, dErrors.CodeUnavailable)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})

	s.Run("deadline without sentinel", func() {
		mockStore.EXPECT().ListAll(gomock.Any()).Return(nil, context.DeadlineExceeded)
		_, err := svc.List(at(testutil.T0), models.ListFilter{})
		s.requireCode(err, dErrors.CodeUnavailable)
	})

	s.Run("save failure on submit is internal", func() {
		mockStore.EXPECT().FindByNationalID(gomock.Any(), nationalID).Return(nil, sentinel.ErrNotFound)
		mockStore.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		_, err := svc.SubmitOrUpdate(at(testutil.T0), nationalID, secondYear(), nil)
		s.requireCode(err, dErrors.CodeInternal)
	})

	s.Run("store call honours the bounded timeout", func() {
		slow, err := New(mockStore, requirements.NewResolver(), nil, WithStoreTimeout(20*time.Millisecond))
		s.Require().NoError(err)
		mockStore.EXPECT().FindByNationalID(gomock.Any(), nationalID).
			DoAndReturn(func(ctx context.Context, _ models.NationalID) (*models.Registration, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
		_, err = slow.ResetAlarm(at(testutil.T0), nationalID, 3, "reason")
		s.requireCode(err, dErrors.CodeUnavailable)
	})
}
