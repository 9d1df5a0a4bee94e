// Package kafka ships audit events to a Kafka topic. It is a write-only
// sink: querying happens wherever the topic is consumed, not here.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	dErrors "assent/pkg/domain-errors"
	audit "assent/pkg/platform/audit"
)

const DefaultTopic = "assent.audit.v1"

type Store struct {
	client *kgo.Client
	topic  string
}

// message is the wire format published to the topic. One JSON document per
// record; the generated ID makes downstream consumption idempotent.
type message struct {
	ID string `json:"id"`
	audit.Event
}

// New connects a producer to the given brokers. Records are keyed by
// subject ID so one subject's events stay ordered within a partition.
func New(brokers []string, topic string) (*Store, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID("assent"),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(message{ID: uuid.NewString(), Event: event})
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(event.SubjectID),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit message: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(context.Context, string) ([]audit.Event, error) {
	return nil, dErrors.New(dErrors.CodeUnsupported, "kafka audit sink is write-only")
}

func (s *Store) ListRecent(context.Context, int) ([]audit.Event, error) {
	return nil, dErrors.New(dErrors.CodeUnsupported, "kafka audit sink is write-only")
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}
