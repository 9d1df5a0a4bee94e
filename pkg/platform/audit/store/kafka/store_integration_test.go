//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	dErrors "assent/pkg/domain-errors"
	audit "assent/pkg/platform/audit"
	kafkastore "assent/pkg/platform/audit/store/kafka"
	"assent/pkg/testutil/containers"
)

const testTopic = "assent.audit.test"

type KafkaSinkSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	sink     *kafkastore.Store
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redpanda = mgr.GetRedpanda(s.T())

	err := s.redpanda.RecreateTopic(context.Background(), testTopic)
	s.Require().NoError(err)

	sink, err := kafkastore.New([]string{s.redpanda.Broker}, testTopic)
	s.Require().NoError(err)
	s.sink = sink
}

func (s *KafkaSinkSuite) TearDownSuite() {
	if s.sink != nil {
		s.NoError(s.sink.Close())
	}
}

func (s *KafkaSinkSuite) TestAppendPublishesKeyedMessages() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events := []audit.Event{
		{
			Timestamp: time.Now().UTC(),
			Action:    audit.ActionConsentSet,
			SubjectID: "alice",
			Purposes:  []string{"analytics"},
			Decision:  audit.DecisionGranted,
			Driver:    "memory",
		},
		{
			Timestamp: time.Now().UTC(),
			Action:    audit.ActionConsentRevoked,
			SubjectID: "alice",
			Driver:    "memory",
		},
		{
			Timestamp: time.Now().UTC(),
			Action:    audit.ActionBannerEvaluated,
			SubjectID: "bob",
			Decision:  audit.DecisionShow,
			Driver:    "memory",
		},
	}
	for _, ev := range events {
		s.Require().NoError(s.sink.Append(ctx, ev))
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) < len(events) {
		fetches := consumer.PollFetches(ctx)
		s.Require().Empty(fetches.Errors())
		records = append(records, fetches.Records()...)
	}
	s.Require().Len(records, len(events))

	// The topic has one partition, so publish order is preserved.
	s.Equal("alice", string(records[0].Key), "records are keyed by subject")
	s.Equal("bob", string(records[2].Key))

	var msg struct {
		ID string `json:"id"`
		audit.Event
	}
	s.Require().NoError(json.Unmarshal(records[0].Value, &msg))
	s.NotEmpty(msg.ID, "each message carries a generated idempotency ID")
	s.Equal(audit.ActionConsentSet, msg.Action)
	s.Equal([]string{"analytics"}, msg.Purposes)

	ids := map[string]struct{}{}
	for _, rec := range records {
		var m struct {
			ID string `json:"id"`
		}
		s.Require().NoError(json.Unmarshal(rec.Value, &m))
		ids[m.ID] = struct{}{}
	}
	s.Len(ids, len(events), "idempotency IDs are unique per message")
}

func (s *KafkaSinkSuite) TestListsAreUnsupported() {
	_, err := s.sink.ListBySubject(context.Background(), "alice")
	s.True(dErrors.HasCode(err, dErrors.CodeUnsupported))

	_, err = s.sink.ListRecent(context.Background(), 5)
	s.True(dErrors.HasCode(err, dErrors.CodeUnsupported))
}
