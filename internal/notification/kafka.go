package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"enrollgate/internal/pending/models"
	"enrollgate/internal/platform/kafka/producer"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/requestcontext"
)

const defaultConcurrency = 8

// Producer publishes one record synchronously.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaDispatcher publishes notices to Kafka keyed by national ID, so every
// notice for one applicant lands on the same partition in order.
type KafkaDispatcher struct {
	producer          Producer
	notificationTopic string
	eventTopic        string
	concurrency       int
	logger            *slog.Logger
}

// Option configures a KafkaDispatcher.
type Option func(*KafkaDispatcher)

// WithTopics sets the notification and lifecycle event topics.
func WithTopics(notifications, events string) Option {
	return func(d *KafkaDispatcher) {
		if notifications != "" {
			d.notificationTopic = notifications
		}
		if events != "" {
			d.eventTopic = events
		}
	}
}

// WithConcurrency bounds parallel produces within one batch.
func WithConcurrency(n int) Option {
	return func(d *KafkaDispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *KafkaDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewKafkaDispatcher creates a dispatcher on top of prod.
func NewKafkaDispatcher(prod Producer, opts ...Option) *KafkaDispatcher {
	d := &KafkaDispatcher{
		producer:          prod,
		notificationTopic: "enrollgate.pending.notifications",
		eventTopic:        "enrollgate.pending.events",
		concurrency:       defaultConcurrency,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NotifyIndividual publishes an operator-initiated notice.
func (d *KafkaDispatcher) NotifyIndividual(ctx context.Context, view *models.View, opts models.NotifyOptions) error {
	n := NewNotice(KindNotice, view, requestcontext.Now(ctx))
	n.Channel = opts.Channel
	n.Message = opts.Message
	return d.publish(ctx, d.notificationTopic, n)
}

// NotifyBatch publishes a reminder for each live view at least as urgent as
// minUrgency. Returns how many were published; on failure the first error is
// returned alongside the count of notices that did go out.
func (d *KafkaDispatcher) NotifyBatch(ctx context.Context, views []*models.View, minUrgency models.Urgency) (int, error) {
	targets := FilterByUrgency(views, minUrgency)
	now := requestcontext.Now(ctx)

	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, v := range targets {
		v := v
		g.Go(func() error {
			if err := d.publish(gctx, d.notificationTopic, NewNotice(KindReminder, v, now)); err != nil {
				return err
			}
			sent.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(sent.Load()), err
}

// NotifyExpired publishes the deletion event for an expired record.
func (d *KafkaDispatcher) NotifyExpired(ctx context.Context, reg *models.Registration, at time.Time) error {
	return d.publish(ctx, d.eventTopic, ExpiredNotice(reg, at))
}

func (d *KafkaDispatcher) publish(ctx context.Context, topic string, n Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	msg := &producer.Message{
		Topic: topic,
		Key:   []byte(n.NationalID),
		Value: payload,
		Headers: map[string]string{
			"notice_id":   n.ID.String(),
			"notice_kind": string(n.Kind),
		},
	}
	if err := d.producer.Produce(ctx, msg); err != nil {
		d.logger.WarnContext(ctx, "failed to publish notice",
			"kind", n.Kind,
			"national_id_suffix", models.NationalID(n.NationalID).Suffix(),
			"error", err,
		)
		return fmt.Errorf("publish %s: %w: %w", n.Kind, sentinel.ErrUnavailable, err)
	}
	return nil
}
