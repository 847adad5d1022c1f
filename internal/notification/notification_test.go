package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollgate/internal/completeness"
	"enrollgate/internal/pending/models"
	"enrollgate/internal/platform/kafka/producer"
	"enrollgate/internal/requirements"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/requestcontext"
	"enrollgate/pkg/testutil"
)

type fakeProducer struct {
	mu       sync.Mutex
	messages []*producer.Message
	failKey  string
}

func (p *fakeProducer) Produce(_ context.Context, msg *producer.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if string(msg.Key) == p.failKey {
		return errors.New("broker unreachable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func viewAt(id models.NationalID, state models.State, now time.Time) *models.View {
	reg := testutil.NewRegistrationBuilder().
		WithNationalID(id).
		WithState(state).
		WithDocuments(completeness.Refs{requirements.DocIdentity: "objects/id"}).
		Build()
	set := requirements.NewResolver().Resolve(reg.Personal.Modality, reg.Personal.PlanOrYear, "")
	return models.NewView(reg, set, now)
}

func decode(t *testing.T, msg *producer.Message) Notice {
	t.Helper()
	var n Notice
	require.NoError(t, json.Unmarshal(msg.Value, &n))
	return n
}

func TestNewNoticeCarriesComputedContext(t *testing.T) {
	now := testutil.T0.Add(6 * testutil.Day)
	n := NewNotice(KindReminder, viewAt("30111222", models.StateIncomplete, now), now)

	assert.Equal(t, KindReminder, n.Kind)
	assert.Equal(t, "Ana Pérez", n.FullName)
	assert.Equal(t, 1, n.DaysRemaining)
	assert.Equal(t, "critical", n.Urgency)
	assert.Contains(t, n.MissingDocs, "partial transcript or transfer request")
	assert.NotEqual(t, uuid.Nil, n.ID)
}

func TestFilterByUrgency(t *testing.T) {
	now := testutil.T0.Add(5 * testutil.Day) // two days left: urgent
	views := []*models.View{
		viewAt("10000001", models.StateIncomplete, now),
		viewAt("10000002", models.StateProcessed, now),
		viewAt("10000003", models.StateIncomplete, testutil.T0.Add(9*testutil.Day)),
		nil,
	}

	got := FilterByUrgency(views, models.UrgencyUrgent)
	require.Len(t, got, 1)
	assert.Equal(t, models.NationalID("10000001"), got[0].Registration.NationalID)

	assert.Empty(t, FilterByUrgency(views, models.UrgencyCritical))
	assert.Len(t, FilterByUrgency(views, ""), 1)
}

func TestKafkaDispatcherNotifyIndividual(t *testing.T) {
	prod := &fakeProducer{}
	d := NewKafkaDispatcher(prod, WithTopics("notices", "events"))
	now := testutil.T0.Add(2 * testutil.Day)
	ctx := requestcontext.WithTime(context.Background(), now)

	err := d.NotifyIndividual(ctx, viewAt("30111222", models.StateIncomplete, now),
		models.NotifyOptions{Channel: "sms", Message: "bring the transcript"})
	require.NoError(t, err)

	require.Len(t, prod.messages, 1)
	msg := prod.messages[0]
	assert.Equal(t, "notices", msg.Topic)
	assert.Equal(t, []byte("30111222"), msg.Key)
	assert.Equal(t, string(KindNotice), msg.Headers["notice_kind"])

	n := decode(t, msg)
	assert.Equal(t, "sms", n.Channel)
	assert.Equal(t, "bring the transcript", n.Message)
	assert.Equal(t, 5, n.DaysRemaining)
	assert.True(t, now.Equal(n.CreatedAt))
	assert.Equal(t, msg.Headers["notice_id"], n.ID.String())
}

func TestKafkaDispatcherNotifyBatch(t *testing.T) {
	now := testutil.T0.Add(6 * testutil.Day)
	views := []*models.View{
		viewAt("10000001", models.StateIncomplete, now),
		viewAt("10000002", models.StateNoDocumentation, now),
		viewAt("10000003", models.StateProcessed, now),
	}

	t.Run("publishes one reminder per matching view", func(t *testing.T) {
		prod := &fakeProducer{}
		d := NewKafkaDispatcher(prod, WithConcurrency(2))
		sent, err := d.NotifyBatch(context.Background(), views, models.UrgencyUrgent)
		require.NoError(t, err)
		assert.Equal(t, 2, sent)

		keys := []string{}
		for _, m := range prod.messages {
			keys = append(keys, string(m.Key))
			assert.Equal(t, KindReminder, decode(t, m).Kind)
		}
		assert.ElementsMatch(t, []string{"10000001", "10000002"}, keys)
	})

	t.Run("failed produce is unavailable", func(t *testing.T) {
		prod := &fakeProducer{failKey: "10000002"}
		d := NewKafkaDispatcher(prod, WithConcurrency(1))
		sent, err := d.NotifyBatch(context.Background(), views, "")
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.LessOrEqual(t, sent, 1)
	})
}

func TestKafkaDispatcherNotifyExpired(t *testing.T) {
	prod := &fakeProducer{}
	d := NewKafkaDispatcher(prod, WithTopics("", "lifecycle"))
	reg := testutil.NewRegistrationBuilder().Build()

	require.NoError(t, d.NotifyExpired(context.Background(), reg, testutil.T0.Add(8*testutil.Day)))
	require.Len(t, prod.messages, 1)
	assert.Equal(t, "lifecycle", prod.messages[0].Topic)
	n := decode(t, prod.messages[0])
	assert.Equal(t, KindExpired, n.Kind)
	assert.True(t, reg.ExpiresAt.Equal(n.ExpiresAt))
}

func TestLogDispatcherNeverLogsFullNationalID(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(slog.New(slog.NewJSONHandler(&buf, nil)))
	now := testutil.T0.Add(6 * testutil.Day)

	sent, err := d.NotifyBatch(context.Background(), []*models.View{viewAt("30111222", models.StateIncomplete, now)}, models.UrgencyUrgent)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.NoError(t, d.NotifyExpired(context.Background(), testutil.NewRegistrationBuilder().Build(), now))

	out := buf.String()
	assert.Contains(t, out, `"national_id_suffix":"222"`)
	assert.NotContains(t, out, "30111222")
}
