package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"enrollgate/internal/platform/config"
)

const (
	clientID     = "enrollgate"
	flushTimeout = 30 * time.Second
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("producer is closed")

// Message is one record bound for a notification or lifecycle topic.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Metrics counts produced records per topic and outcome.
type Metrics struct {
	Produced *prometheus.CounterVec
}

// NewMetrics registers the producer collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Produced: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "enrollgate_kafka_records_produced_total",
			Help: "Records produced to Kafka by topic and outcome",
		}, []string{"topic", "outcome"}),
	}
}

// Producer publishes records synchronously through a franz-go client.
type Producer struct {
	client  *kgo.Client
	logger  *slog.Logger
	metrics *Metrics
	closed  atomic.Bool
}

// Option configures a Producer.
type Option func(*Producer)

// WithMetrics records produce outcomes.
func WithMetrics(m *Metrics) Option {
	return func(p *Producer) { p.metrics = m }
}

// New creates a producer from the broker settings.
func New(cfg config.KafkaConfig, logger *slog.Logger, opts ...Option) (*Producer, error) {
	brokers := cfg.KafkaBrokers()
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RecordRetries(cfg.Retries),
		kgo.ProducerLinger(5 * time.Millisecond),
	}
	switch cfg.Acks {
	case "0":
		kopts = append(kopts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	case "1":
		kopts = append(kopts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	default:
		kopts = append(kopts, kgo.RequiredAcks(kgo.AllISRAcks()))
	}
	if cfg.DeliveryTimeout > 0 {
		kopts = append(kopts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Producer{client: client, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// EnsureTopics creates any missing topic with the given partition count.
// Topics that already exist are left untouched.
func (p *Producer) EnsureTopics(ctx context.Context, partitions int32, replication int16, topics ...string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	resp, err := kadm.NewClient(p.client).CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	var errs []error
	for _, topic := range resp.Sorted() {
		switch {
		case topic.Err == nil:
			p.logger.InfoContext(ctx, "kafka topic created", "topic", topic.Topic, "partitions", partitions)
		case errors.Is(topic.Err, kerr.TopicAlreadyExists):
		default:
			errs = append(errs, fmt.Errorf("topic %s: %w", topic.Topic, topic.Err))
		}
	}
	return errors.Join(errs...)
}

// Produce sends one record and waits for its delivery report.
func (p *Producer) Produce(ctx context.Context, msg *Message) error {
	if p.closed.Load() {
		return ErrClosed
	}
	err := p.client.ProduceSync(ctx, toRecord(msg)).FirstErr()
	p.observe(msg.Topic, err)
	if err != nil {
		return fmt.Errorf("produce to %s: %w", msg.Topic, err)
	}
	return nil
}

func (p *Producer) observe(topic string, err error) {
	if p.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.Produced.WithLabelValues(topic, outcome).Inc()
}

func toRecord(msg *Message) *kgo.Record {
	rec := &kgo.Record{Topic: msg.Topic, Key: msg.Key, Value: msg.Value}
	for k, v := range msg.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return rec
}

// Close flushes buffered records and shuts the client down. Safe to call twice.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka producer closed with unflushed notices", "error", err)
	}
	p.client.Close()
	return nil
}

// Health pings the brokers.
func (p *Producer) Health(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.client.Ping(ctx)
}
