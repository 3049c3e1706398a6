//go:build integration

package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"frontdesk/pkg/testutil/containers"
)

func TestKafkaOutboxPublish(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "frontdesk.notifications.test"
	outbox := NewKafkaOutbox(rp.Client(t), topic)
	require.NoError(t, outbox.EnsureTopic(ctx, 1, 1))
	require.NoError(t, outbox.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	envelope := Envelope{
		ID:            "env-1",
		RecordID:      "corr-1",
		CondominiumID: "condo-1",
		Category:      CategoryArrival,
		RecipientName: "Maria",
		Phone:         "5511999990000",
		Message:       Message{Subject: "Correspondence waiting", Text: "Hello Maria", Link: "https://desk.example/ver?p=P1"},
		ComposedAt:    time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, outbox.Publish(ctx, envelope))

	consumer := rp.Client(t, kgo.ConsumeTopics(topic), kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "corr-1", string(rec.Key))
	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "arrival", headers["category"])
	assert.Equal(t, "env-1", headers["envelope_id"])

	var got Envelope
	require.NoError(t, json.Unmarshal(rec.Value, &got))
	assert.Equal(t, envelope.Message, got.Message)
	assert.Equal(t, envelope.Phone, got.Phone)
}
