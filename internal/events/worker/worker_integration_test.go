//go:build integration

package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"satvault/internal/events"
	eventspg "satvault/internal/events/store/postgres"
	"satvault/internal/events/worker"
	"satvault/internal/platform/config"
	"satvault/internal/platform/kafka"
	"satvault/internal/platform/logger"
	platformpg "satvault/internal/platform/postgres"
	"satvault/pkg/testutil/containers"
)

// =============================================================================
// Outbox Worker Integration Tests
// =============================================================================
// End to end through real Postgres and a real Kafka-protocol broker: an
// appended event must land on the topic and the outbox row must be marked.

func TestOutboxDrainsToBroker(t *testing.T) {
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	require.NoError(t, platformpg.Migrate(ctx, pc.DB, config.Server{}))
	rp := containers.NewRedpandaContainer(t)

	const topic = "satvault.events.test"
	producer, err := kafka.NewPublisher(ctx, rp.Brokers, topic)
	require.NoError(t, err)
	require.NotNil(t, producer)
	defer producer.Close()

	store := eventspg.New(pc.DB)
	require.NoError(t, store.Append(ctx, events.Event{
		ID:      "evt-1",
		Action:  events.ActionDeposit,
		Actor:   "acct-alice",
		Account: "acct-alice",
		Assets:  100_000_000,
		Shares:  100_000_000,
	}))

	w := worker.New(pc.DB, producer, logger.New())
	published, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, published)

	// Second pass finds nothing: the row is marked published.
	published, err = w.DrainOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, published)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, "acct-alice", string(records[0].Key))
	require.Contains(t, string(records[0].Value), `"evt-1"`)
}
