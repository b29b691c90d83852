//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"satvault/internal/platform/config"
	platformpg "satvault/internal/platform/postgres"
	"satvault/internal/queue"
	queuepg "satvault/internal/queue/store/postgres"
	"satvault/pkg/domain"
	"satvault/pkg/platform/sentinel"
	"satvault/pkg/testutil/containers"
)

// =============================================================================
// Withdrawal Request Store Integration Tests
// =============================================================================
// The completed-at compare-and-set is what makes finalization exactly-once;
// it only counts when exercised against real Postgres.

func newStore(t *testing.T) (*queuepg.Store, *containers.PostgresContainer) {
	t.Helper()
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	require.NoError(t, platformpg.Migrate(ctx, pc.DB, config.Server{}))
	return queuepg.New(pc.Pool), pc
}

func newRequest(created time.Time) queue.WithdrawalRequest {
	return queue.WithdrawalRequest{
		Redeemer:        "acct-alice",
		SharesBurned:    1_000,
		AssetAmount:     950,
		ExitFee:         50,
		DestinationHash: domain.HashScript([]byte{0x00, 0x14, 0xde, 0xad}),
		CreatedAt:       created,
	}
}

func TestCreateFundedAssignsSequentialIDsAndCreditsCustody(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Microsecond)

	first, err := store.CreateFunded(ctx, newRequest(created))
	require.NoError(t, err)
	second, err := store.CreateFunded(ctx, newRequest(created))
	require.NoError(t, err)

	require.Equal(t, domain.RequestID(1), first)
	require.Equal(t, domain.RequestID(2), second)

	got, err := store.Get(ctx, first)
	require.NoError(t, err)
	require.Equal(t, domain.Sats(950), got.AssetAmount)
	require.Equal(t, domain.Sats(50), got.ExitFee)
	require.True(t, got.CreatedAt.Equal(created))
	require.Nil(t, got.CompletedAt)

	// Each request carried its payout into custody.
	balance, err := store.CustodyBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Sats(1900), balance)
}

func TestGetUnknownRequest(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Get(context.Background(), 42)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCompleteIsExactlyOnce(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	id, err := store.CreateFunded(ctx, newRequest(time.Now().UTC()))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.Complete(ctx, id, now, 950))

	err = store.Complete(ctx, id, now, 950)
	require.ErrorIs(t, err, sentinel.ErrAlreadyCompleted)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)

	balance, err := store.CustodyBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Sats(0), balance)
}

func TestCompleteRefusesCustodyOverdraft(t *testing.T) {
	store, pc := newStore(t)
	ctx := context.Background()

	id, err := store.CreateFunded(ctx, newRequest(time.Now().UTC()))
	require.NoError(t, err)

	// Drain custody below the request's amount behind the store's back.
	_, err = pc.DB.ExecContext(ctx,
		"UPDATE queue_custody SET balance = 100 WHERE singleton")
	require.NoError(t, err)

	err = store.Complete(ctx, id, time.Now().UTC(), 950)
	require.ErrorIs(t, err, sentinel.ErrInsufficientFunds)

	// The whole transaction rolls back: the request stays pending.
	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Nil(t, got.CompletedAt)

	balance, err := store.CustodyBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Sats(100), balance)
}

func TestCompleteUnknownRequest(t *testing.T) {
	store, _ := newStore(t)

	err := store.Complete(context.Background(), 42, time.Now().UTC(), 1)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestListByRedeemer(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.CreateFunded(ctx, newRequest(time.Now().UTC()))
	require.NoError(t, err)
	other := newRequest(time.Now().UTC())
	other.Redeemer = "acct-bob"
	_, err = store.CreateFunded(ctx, other)
	require.NoError(t, err)

	mine, err := store.List(ctx, "acct-alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, domain.AccountID("acct-alice"), mine[0].Redeemer)
}
