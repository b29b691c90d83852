package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"satvault/internal/allocator/mocks"
	"satvault/internal/events"
	eventsmemory "satvault/internal/events/store/memory"
	"satvault/internal/ledger"
	ledgermemory "satvault/internal/ledger/store/memory"
	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
)

// =============================================================================
// Allocator Failure Modes
// =============================================================================
// The fakes cover cooperative gateways; gomock pins down what happens when
// the allocator endpoint misbehaves mid-operation.

func newVaultWithGateway(t *testing.T, gateway *mocks.MockGateway) (*ledger.Service, *ledgermemory.InMemoryStore) {
	t.Helper()
	store := ledgermemory.New(ledger.Config{Treasury: "acct-treasury"})
	svc, err := ledger.New(store, events.NewPublisher(eventsmemory.New()), ledger.WithGateway(gateway))
	require.NoError(t, err)
	return svc, store
}

func TestTotalAssetsValuationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	svc, _ := newVaultWithGateway(t, gateway)
	ctx := context.Background()

	gateway.EXPECT().Valuation(gomock.Any()).Return(domain.Sats(0), errors.New("allocator down"))

	_, err := svc.TotalAssets(ctx)
	require.Error(t, err)
	require.True(t, dErrors.Is(err, dErrors.CodeUnavailable))
}

func TestAllocatePushFailureLeavesReserve(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	svc, _ := newVaultWithGateway(t, gateway)
	ctx := context.Background()

	gateway.EXPECT().Valuation(gomock.Any()).Return(domain.Sats(0), nil).AnyTimes()
	_, err := svc.Deposit(ctx, domain.Actor{Account: "acct-alice"}, 1_000, "acct-alice")
	require.NoError(t, err)

	gateway.EXPECT().Push(gomock.Any(), domain.Sats(1_000)).Return(errors.New("connection reset"))

	keeper := domain.Actor{Account: "acct-keeper", Roles: []domain.Role{domain.RoleMaintainer}}
	_, err = svc.Allocate(ctx, keeper)
	require.Error(t, err)
	require.True(t, dErrors.Is(err, dErrors.CodeUnavailable))

	total, err := svc.TotalAssets(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Sats(1_000), total)
}

func TestWithdrawRecallFailureAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	svc, _ := newVaultWithGateway(t, gateway)
	ctx := context.Background()
	owner := domain.Actor{Account: "acct-alice"}

	gateway.EXPECT().Valuation(gomock.Any()).Return(domain.Sats(0), nil).AnyTimes()
	_, err := svc.Deposit(ctx, owner, 1_000, owner.Account)
	require.NoError(t, err)

	gateway.EXPECT().Push(gomock.Any(), domain.Sats(1_000)).Return(nil)
	keeper := domain.Actor{Account: "acct-keeper", Roles: []domain.Role{domain.RoleMaintainer}}
	_, err = svc.Allocate(ctx, keeper)
	require.NoError(t, err)

	gateway.EXPECT().Recall(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	_, err = svc.Withdraw(ctx, owner, 500, owner.Account, owner.Account)
	require.Error(t, err)

	shares, err := svc.Balance(ctx, owner.Account)
	require.NoError(t, err)
	require.Equal(t, domain.Shares(1_000), shares)
}
