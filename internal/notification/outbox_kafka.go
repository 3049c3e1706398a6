package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaOutbox produces envelopes to a topic keyed by record id, so all
// messages about one record stay ordered on one partition.
type KafkaOutbox struct {
	client *kgo.Client
	topic  string
}

func NewKafkaOutbox(client *kgo.Client, topic string) *KafkaOutbox {
	return &KafkaOutbox{client: client, topic: topic}
}

// EnsureTopic creates the topic when missing.
func (o *KafkaOutbox) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(o.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, o.topic)
	if err != nil {
		return fmt.Errorf("create outbox topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create outbox topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (o *KafkaOutbox) Publish(ctx context.Context, e Envelope) error {
	value, err := e.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	record := &kgo.Record{
		Topic: o.topic,
		Key:   []byte(e.RecordID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(e.Category)},
			{Key: "envelope_id", Value: []byte(e.ID)},
		},
	}
	if err := o.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce envelope: %w", err)
	}
	return nil
}
