// Package sweep runs the pending registration lifecycle in the background:
// expired records are deleted, processed leftovers are finalized, and
// applicants whose deadline becomes urgent are reminded.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"enrollgate/internal/pending/metrics"
	"enrollgate/internal/pending/models"
	"enrollgate/internal/pending/service"
	"enrollgate/pkg/requestcontext"
)

const (
	// DefaultInterval is how often a sweep runs.
	DefaultInterval = 6 * time.Hour
	// MaxInterval is half of the shortest alarm extension (one day), so a
	// record is never more than half an extension past its expiry.
	MaxInterval = 12 * time.Hour
)

// ErrAlreadyRunning is returned by Start when the scheduler is active.
var ErrAlreadyRunning = errors.New("sweep scheduler already running")

// Registrations is the slice of the pending service the sweep drives.
type Registrations interface {
	List(ctx context.Context, filter models.ListFilter) ([]*models.View, error)
	ExpireIfStale(ctx context.Context, nationalID models.NationalID, now time.Time) (*models.Registration, bool, error)
	FinalizeIfComplete(ctx context.Context, nationalID models.NationalID) (*service.FinalizeResult, error)
}

// Notifier receives deletion events and urgency reminders.
type Notifier interface {
	NotifyExpired(ctx context.Context, reg *models.Registration, at time.Time) error
	NotifyBatch(ctx context.Context, views []*models.View, minUrgency models.Urgency) (int, error)
}

// Result summarizes one sweep.
type Result struct {
	Scanned   int
	Expired   int
	Finalized int
	Reminded  int
	Failures  int
}

// Scheduler is the lifecycle sweep. It is started and stopped explicitly by
// the process supervisor; RunOnce runs a single sweep synchronously.
type Scheduler struct {
	registrations Registrations
	notifier      Notifier
	metrics       *metrics.Metrics
	logger        *slog.Logger
	interval      time.Duration

	// lastUrgency remembers the level each live record was last reminded at,
	// so a reminder goes out once per escalation rather than once per sweep.
	urgencyMu   sync.Mutex
	lastUrgency map[models.NationalID]models.Urgency

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithNotifier enables deletion events and reminders.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Scheduler. The interval must not exceed MaxInterval.
func New(registrations Registrations, opts ...Option) (*Scheduler, error) {
	if registrations == nil {
		return nil, fmt.Errorf("registrations are required")
	}
	s := &Scheduler{
		registrations: registrations,
		interval:      DefaultInterval,
		logger:        slog.Default(),
		lastUrgency:   make(map[models.NationalID]models.Urgency),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.interval > MaxInterval {
		return nil, fmt.Errorf("sweep interval %s exceeds maximum %s", s.interval, MaxInterval)
	}
	return s, nil
}

// Start runs a sweep immediately and then every interval until ctx is
// cancelled or Stop is called. It blocks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.cancel != nil {
		s.runMu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.runMu.Unlock()

	defer func() {
		cancel()
		s.runMu.Lock()
		s.cancel, s.done = nil, nil
		s.runMu.Unlock()
		close(done)
	}()

	s.logger.InfoContext(ctx, "pending sweep scheduler started", "interval", s.interval)
	s.runLogged(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runLogged(ctx)
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "pending sweep scheduler stopped")
			return ctx.Err()
		}
	}
}

// Stop cancels a running scheduler and waits for the current sweep to return.
// It is a no-op when the scheduler is not running.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.ErrorContext(ctx, "pending sweep failed", "error", err)
	}
}

// RunOnce performs a single sweep with one pinned "now". Per-record failures
// are logged, counted and skipped; only a failure to list aborts the sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, now)

	var res Result
	views, err := s.registrations.List(ctx, models.ListFilter{IncludeExpired: true})
	if err != nil {
		return res, fmt.Errorf("list pending registrations: %w", err)
	}

	counts := map[string]int{}
	seen := make(map[models.NationalID]struct{}, len(views))
	var reminders []*models.View
	for _, view := range views {
		if err := ctx.Err(); err != nil {
			s.metrics.ObserveSweep(time.Since(start), res.Failures)
			return res, err
		}
		res.Scanned++
		reg := view.Registration
		seen[reg.NationalID] = struct{}{}

		switch {
		case view.Expired:
			s.expire(ctx, reg, now, &res)
		case reg.State.IsTerminal():
			s.finalize(ctx, reg, &res)
		default:
			counts[string(view.Urgency)]++
			if s.escalated(reg.NationalID, view.Urgency) {
				reminders = append(reminders, view)
			}
		}
	}
	s.forgetMissing(seen)
	s.remind(ctx, reminders, &res)

	s.metrics.ObserveSweep(time.Since(start), res.Failures)
	s.metrics.SetPendingByUrgency(counts)
	s.logger.InfoContext(ctx, "pending sweep completed",
		"scanned", res.Scanned,
		"expired", res.Expired,
		"finalized", res.Finalized,
		"reminded", res.Reminded,
		"failures", res.Failures,
		"duration", time.Since(start),
	)
	return res, nil
}

func (s *Scheduler) expire(ctx context.Context, reg *models.Registration, now time.Time, res *Result) {
	expired, deleted, err := s.registrations.ExpireIfStale(ctx, reg.NationalID, now)
	if err != nil {
		res.Failures++
		s.logger.WarnContext(ctx, "failed to expire pending registration",
			"national_id_suffix", reg.NationalID.Suffix(),
			"error", err,
		)
		return
	}
	if !deleted {
		return
	}
	res.Expired++
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyExpired(ctx, expired, now); err != nil {
		res.Failures++
		s.logger.WarnContext(ctx, "failed to emit pending deletion event",
			"national_id_suffix", reg.NationalID.Suffix(),
			"error", err,
		)
	}
}

// finalize retries processed records left behind by an unavailable enrollment store.
func (s *Scheduler) finalize(ctx context.Context, reg *models.Registration, res *Result) {
	out, err := s.registrations.FinalizeIfComplete(ctx, reg.NationalID)
	if err != nil {
		res.Failures++
		s.logger.WarnContext(ctx, "failed to finalize processed registration",
			"national_id_suffix", reg.NationalID.Suffix(),
			"error", err,
		)
		return
	}
	if out.Finalized {
		res.Finalized++
	}
}

func (s *Scheduler) escalated(id models.NationalID, urgency models.Urgency) bool {
	s.urgencyMu.Lock()
	defer s.urgencyMu.Unlock()
	if !urgency.AtLeast(models.UrgencyUrgent) {
		// An alarm reset moved the deadline out; the next escalation reminds again.
		delete(s.lastUrgency, id)
		return false
	}
	prev, ok := s.lastUrgency[id]
	return !ok || !prev.AtLeast(urgency)
}

func (s *Scheduler) forgetMissing(seen map[models.NationalID]struct{}) {
	s.urgencyMu.Lock()
	defer s.urgencyMu.Unlock()
	for id := range s.lastUrgency {
		if _, ok := seen[id]; !ok {
			delete(s.lastUrgency, id)
		}
	}
}

func (s *Scheduler) remind(ctx context.Context, reminders []*models.View, res *Result) {
	if s.notifier == nil || len(reminders) == 0 {
		return
	}
	sent, err := s.notifier.NotifyBatch(ctx, reminders, models.UrgencyUrgent)
	if err != nil {
		res.Failures++
		s.logger.WarnContext(ctx, "failed to send pending reminders", "count", len(reminders), "error", err)
		return
	}
	res.Reminded = sent

	s.urgencyMu.Lock()
	defer s.urgencyMu.Unlock()
	for _, v := range reminders {
		s.lastUrgency[v.Registration.NationalID] = v.Urgency
		s.metrics.IncrementReminders(string(v.Urgency))
	}
}
