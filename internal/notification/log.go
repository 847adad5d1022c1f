package notification

import (
	"context"
	"log/slog"
	"time"

	"enrollgate/internal/pending/models"
	"enrollgate/pkg/requestcontext"
)

// LogDispatcher writes notices to the log. It is the development fallback
// when no broker is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) NotifyIndividual(ctx context.Context, view *models.View, opts models.NotifyOptions) error {
	n := NewNotice(KindNotice, view, requestcontext.Now(ctx))
	d.log(ctx, n, "channel", opts.Channel)
	return nil
}

func (d *LogDispatcher) NotifyBatch(ctx context.Context, views []*models.View, minUrgency models.Urgency) (int, error) {
	targets := FilterByUrgency(views, minUrgency)
	now := requestcontext.Now(ctx)
	for _, v := range targets {
		d.log(ctx, NewNotice(KindReminder, v, now))
	}
	return len(targets), nil
}

func (d *LogDispatcher) NotifyExpired(ctx context.Context, reg *models.Registration, at time.Time) error {
	d.log(ctx, ExpiredNotice(reg, at))
	return nil
}

func (d *LogDispatcher) log(ctx context.Context, n Notice, extra ...any) {
	args := append([]any{
		"kind", n.Kind,
		"notice_id", n.ID,
		"national_id_suffix", models.NationalID(n.NationalID).Suffix(),
		"days_remaining", n.DaysRemaining,
		"urgency", n.Urgency,
		"missing_docs", n.MissingDocs,
	}, extra...)
	d.logger.InfoContext(ctx, "pending notice", args...)
}
