package service

import (
	"context"
	"time"

	"enrollgate/internal/pending/models"
	"enrollgate/internal/requirements"
)

// Store defines the persistence interface for pending registrations.
// Error Contract: FindByNationalID returns sentinel.ErrNotFound when no record exists;
// connectivity and deadline failures wrap sentinel.ErrUnavailable.
type Store interface {
	FindByNationalID(ctx context.Context, nationalID models.NationalID) (*models.Registration, error)
	Save(ctx context.Context, reg *models.Registration) error
	Delete(ctx context.Context, nationalID models.NationalID) (bool, error)
	DeleteExpired(ctx context.Context, nationalID models.NationalID, now time.Time) (bool, error)
	ListAll(ctx context.Context) ([]*models.Registration, error)
}

// Resolver maps modality and plan to the documents an enrollment requires.
type Resolver interface {
	Resolve(modality, planOrYear, module string) requirements.Set
}

// Finalizer promotes a complete registration into the enrollment store.
// Error Contract: returns sentinel.ErrConflict when the national ID is already
// enrolled and errors wrapping sentinel.ErrUnavailable when the store cannot be reached.
type Finalizer interface {
	Finalize(ctx context.Context, reg *models.Registration) error
}

// Notifier dispatches applicant notifications. Transport is owned by the implementation.
type Notifier interface {
	NotifyIndividual(ctx context.Context, view *models.View, opts models.NotifyOptions) error
	NotifyBatch(ctx context.Context, views []*models.View, minUrgency models.Urgency) (int, error)
}
