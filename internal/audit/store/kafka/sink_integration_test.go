//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"authgate/internal/audit"
	platformkafka "authgate/internal/platform/kafka"
	"authgate/pkg/testutil/containers"
)

func TestSinkPublishesToRedpanda(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	t.Cleanup(rp.Terminate)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	producer, err := platformkafka.NewProducer(rp.Brokers)
	require.NoError(t, err)
	t.Cleanup(producer.Close)
	require.NoError(t, producer.EnsureTopic(ctx, "authgate.audit", 1, 1))

	sink := New(producer, "authgate.audit")
	require.NoError(t, sink.Append(ctx, audit.Event{
		ID:        "e1",
		Category:  audit.CategoryOperations,
		Timestamp: time.Now(),
		Action:    string(audit.EventSessionEstablished),
		Subject:   "u1",
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics("authgate.audit"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.NotEmpty(t, records)

	var body map[string]string
	require.NoError(t, json.Unmarshal(records[0].Value, &body))
	require.Equal(t, "session_established", body["action"])
	require.Equal(t, "u1", string(records[0].Key))
}
