//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaContainer wraps a Redpanda instance speaking the Kafka protocol.
type KafkaContainer struct {
	Container testcontainers.Container
	Brokers   string
}

// NewKafkaContainer starts a Redpanda container. Topics are created by the
// producer under test, so auto-creation stays off.
func NewKafkaContainer(t *testing.T) *KafkaContainer {
	t.Helper()

	ctx := context.Background()

	container, err := redpanda.Run(ctx,
		"docker.redpanda.com/redpandadata/redpanda:v24.2.4",
	)
	if err != nil {
		t.Fatalf("failed to start redpanda container: %v", err)
	}

	broker, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka seed broker: %v", err)
	}

	return &KafkaContainer{
		Container: container,
		Brokers:   broker,
	}
}

// NewConsumer creates a franz-go consumer reading topics from the start.
func (k *KafkaContainer) NewConsumer(groupID string, topics ...string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
}

// WaitForRecords polls until n records arrived or the timeout elapses.
func (k *KafkaContainer) WaitForRecords(ctx context.Context, client *kgo.Client, n int, timeout time.Duration) []*kgo.Record {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out []*kgo.Record
	for len(out) < n {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			return out
		}
		fetches.EachRecord(func(r *kgo.Record) {
			out = append(out, r)
		})
	}
	return out
}
