// Package service owns the pending registration lifecycle: submission, dedup by
// national ID, expiry, alarm resets, finalization and notifications.
//
// Every mutation runs under a per-key lock and a bounded store timeout. When
// either expires the caller receives CodeUnavailable and nothing is retried here.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"enrollgate/internal/completeness"
	"enrollgate/internal/pending/lock"
	"enrollgate/internal/pending/metrics"
	"enrollgate/internal/pending/models"
	"enrollgate/internal/requirements"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/requestcontext"
	"enrollgate/pkg/validation"
)

const (
	defaultTTL              = 7 * 24 * time.Hour
	defaultStoreTimeout     = 3 * time.Second
	defaultMaxExtensionDays = 30
)

type Option func(*Service)

// Service implements the pending registration operations.
type Service struct {
	store            Store
	resolver         Resolver
	locker           lock.Locker
	finalizer        Finalizer
	notifier         Notifier
	metrics          *metrics.Metrics
	tracer           trace.Tracer
	logger           *slog.Logger
	ttl              time.Duration
	storeTimeout     time.Duration
	maxExtensionDays int
}

func New(store Store, resolver Resolver, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "pending store is required")
	}
	if resolver == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "requirement resolver is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		store:            store,
		resolver:         resolver,
		logger:           logger,
		ttl:              defaultTTL,
		storeTimeout:     defaultStoreTimeout,
		maxExtensionDays: defaultMaxExtensionDays,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.locker == nil {
		svc.locker = lock.NewLocal(0)
	}
	if svc.tracer == nil {
		svc.tracer = otel.Tracer("enrollgate/pending")
	}
	return svc, nil
}

// WithLocker sets the per-key locker. Defaults to an in-process sharded lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithFinalizer sets the enrollment store collaborator.
func WithFinalizer(f Finalizer) Option {
	return func(s *Service) {
		s.finalizer = f
	}
}

// WithNotifier sets the notification dispatcher.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithMetrics sets the metrics instance for the service
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithTTL configures the expiry window applied on create and resubmission.
// Zero or negative keeps the 7 day default.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithStoreTimeout bounds lock acquisition plus store calls for one operation.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithMaxExtensionDays caps a single alarm reset.
func WithMaxExtensionDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.maxExtensionDays = days
		}
	}
}

// ResolveRequirements returns the documents required for the given track.
// Unknown or blank input yields an empty set.
func (s *Service) ResolveRequirements(modality, planOrYear, module string) requirements.Set {
	return s.resolver.Resolve(modality, planOrYear, module)
}

// EvaluateCompleteness checks refs against set without touching any record.
func (s *Service) EvaluateCompleteness(refs completeness.Refs, set requirements.Set) completeness.Result {
	return completeness.Evaluate(refs, set)
}

func (s *Service) requirementsFor(p models.PersonalData) requirements.Set {
	return s.resolver.Resolve(p.Modality, p.PlanOrYear, p.Module)
}

func (s *Service) view(reg *models.Registration, now time.Time) *models.View {
	return models.NewView(reg, s.requirementsFor(reg.Personal), now)
}

// withKey runs fn holding the lock for nationalID. The deadline covers lock
// wait and every store call fn makes.
func (s *Service) withKey(ctx context.Context, op string, nationalID models.NationalID, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	release, err := s.locker.Lock(ctx, string(nationalID))
	s.metrics.ObserveLockWait(start)
	if err != nil {
		s.metrics.IncrementStoreUnavailable(op)
		s.logger.WarnContext(ctx, "pending lock not acquired",
			"operation", op,
			"national_id_suffix", nationalID.Suffix(),
			"error", err,
		)
		return dErrors.Unavailable(err)
	}
	defer release()
	return fn(ctx)
}

// withTimeout bounds a read that needs no lock.
func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) startSpan(ctx context.Context, name string, nationalID models.NationalID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if nationalID != "" {
		attrs = append(attrs, attribute.String("national_id_suffix", nationalID.Suffix()))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// logAudit writes an audit line. Only the national ID suffix is ever logged.
func (s *Service) logAudit(ctx context.Context, action string, nationalID models.NationalID, attributes ...any) {
	args := append([]any{
		"event", action,
		"log_type", "audit",
		"national_id_suffix", nationalID.Suffix(),
		"actor", requestcontext.Actor(ctx),
	}, attributes...)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, action, args...)
}

func parseNationalID(raw models.NationalID) (models.NationalID, error) {
	id := models.NormalizeNationalID(string(raw))
	if id == "" {
		return "", dErrors.New(dErrors.CodeValidation, "national_id is required")
	}
	if !validation.IsNationalID(string(id)) {
		return "", dErrors.New(dErrors.CodeValidation, validation.NationalIDMessage)
	}
	return id, nil
}
