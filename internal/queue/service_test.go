package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"satvault/internal/allocator"
	"satvault/internal/events"
	eventsmemory "satvault/internal/events/store/memory"
	"satvault/internal/ledger"
	ledgermemory "satvault/internal/ledger/store/memory"
	"satvault/internal/queue"
	queuememory "satvault/internal/queue/store/memory"
	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
)

// =============================================================================
// Withdrawal Queue Service Test Suite
// =============================================================================
// The finalize state machine (exactly-once completion, payload tamper
// checks, custody accounting) is the highest-risk part of the engine and
// needs precise control over request and custody state.

var (
	alice      = domain.AccountID("acct-alice")
	bob        = domain.AccountID("acct-bob")
	maintainer = domain.Actor{Account: "acct-keeper", Roles: []domain.Role{domain.RoleMaintainer}}
	governor   = domain.Actor{Account: "acct-gov", Roles: []domain.Role{domain.RoleGovernance}}
	pauseAdmin = domain.Actor{Account: "acct-pause", Roles: []domain.Role{domain.RolePauseAdmin}}

	destinationScript = []byte{0x00, 0x14, 0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}
)

func actorFor(account domain.AccountID) domain.Actor {
	return domain.Actor{Account: account}
}

type QueueServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *queuememory.InMemoryStore
	log      *eventsmemory.InMemoryStore
	gateway  *allocator.Fake
	bridge   *queue.FakeBridge
	vault    *ledger.Service
	service  *queue.Service
	vaultMem *ledgermemory.InMemoryStore
}

func TestQueueServiceSuite(t *testing.T) {
	suite.Run(t, new(QueueServiceSuite))
}

func (s *QueueServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.vaultMem = ledgermemory.New(ledger.Config{
		Treasury:   "acct-treasury",
		Dispatcher: "acct-dispatcher",
	})
	s.log = eventsmemory.New()
	s.gateway = allocator.NewFake()
	s.bridge = queue.NewFakeBridge()

	sink := events.NewPublisher(s.log)
	var err error
	s.vault, err = ledger.New(s.vaultMem, sink, ledger.WithGateway(s.gateway))
	s.Require().NoError(err)

	s.store = queuememory.New()
	s.service, err = queue.New(s.store, s.vault.QueuePort(), s.bridge, sink)
	s.Require().NoError(err)
}

// deposit seeds the vault and allocates everything so queue recalls hit
// the allocator, as they do in production.
func (s *QueueServiceSuite) deposit(account domain.AccountID, assets domain.Sats) {
	_, err := s.vault.Deposit(s.ctx, actorFor(account), assets, account)
	s.Require().NoError(err)
	_, err = s.vault.Allocate(s.ctx, maintainer)
	s.Require().NoError(err)
}

func (s *QueueServiceSuite) setExitFee(bps uint16) {
	exit, err := domain.ParseBasisPoints(uint64(bps))
	s.Require().NoError(err)
	zero, err := domain.ParseBasisPoints(0)
	s.Require().NoError(err)
	s.Require().NoError(s.vault.SetFees(s.ctx, governor, zero, exit))
}

func (s *QueueServiceSuite) request(shares domain.Shares) queue.WithdrawalRequest {
	req, err := s.service.RequestRedeemAndBridge(s.ctx, actorFor(alice), shares, alice, destinationScript)
	s.Require().NoError(err)
	return req
}

func (s *QueueServiceSuite) payloadFor(req queue.WithdrawalRequest) []byte {
	raw, err := queue.SettlementPayload{
		Redeemer:          req.Redeemer,
		DestinationScript: destinationScript,
		AssetAmount:       req.AssetAmount,
	}.Encode()
	s.Require().NoError(err)
	return raw
}

// =============================================================================
// Asynchronous request path
// =============================================================================

func (s *QueueServiceSuite) TestRequestRedeemAndBridge() {
	s.setExitFee(5)
	s.deposit(alice, 100_000_000)

	req := s.request(100_000_000)

	s.Equal(domain.RequestID(1), req.ID)
	s.Equal(alice, req.Redeemer)
	s.Equal(domain.Shares(100_000_000), req.SharesBurned)
	s.Equal(domain.Sats(49_976), req.ExitFee)
	s.Equal(domain.Sats(100_000_000-49_976), req.AssetAmount)
	s.Equal(domain.HashScript(destinationScript), req.DestinationHash)
	s.Nil(req.CompletedAt)
	s.Equal(queue.StatusPending, req.Status())

	// Shares are burned immediately.
	balance, err := s.vault.Balance(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal(domain.Shares(0), balance)

	// Custody holds the payout; the fee left at request time.
	custody, err := s.service.CustodyBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(req.AssetAmount, custody)

	// Custodied assets no longer count toward the vault's totals.
	total, err := s.vault.TotalAssets(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Sats(0), total)
}

func (s *QueueServiceSuite) TestRequestCounterAdvancesOncePerBridgeRequest() {
	s.deposit(alice, 10_000)

	first := s.request(2000)
	second := s.request(3000)
	s.Equal(domain.RequestID(1), first.ID)
	s.Equal(domain.RequestID(2), second.ID)

	// The synchronous path never advances the counter.
	_, err := s.service.RequestRedeem(s.ctx, actorFor(alice), 1000, alice, alice)
	s.Require().NoError(err)

	third := s.request(1000)
	s.Equal(domain.RequestID(3), third.ID)
}

func (s *QueueServiceSuite) TestRequestRequiresOwnShares() {
	s.deposit(alice, 10_000)

	_, err := s.service.RequestRedeemAndBridge(s.ctx, actorFor(bob), 1000, alice, destinationScript)
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))

	_, err = s.service.RequestRedeemAndBridge(s.ctx, actorFor(bob), 1000, bob, destinationScript)
	s.Equal(dErrors.CodeInsufficientFunds, dErrors.CodeOf(err))
}

func (s *QueueServiceSuite) TestRequestBlockedWhilePaused() {
	s.deposit(alice, 10_000)
	s.Require().NoError(s.vault.Pause(s.ctx, pauseAdmin))

	_, err := s.service.RequestRedeemAndBridge(s.ctx, actorFor(alice), 1000, alice, destinationScript)
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
	_, err = s.service.RequestRedeem(s.ctx, actorFor(alice), 1000, alice, alice)
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
}

func (s *QueueServiceSuite) TestRequestRefusedRecallLeavesStateIntact() {
	s.deposit(alice, 10_000)
	s.gateway.RefuseRecalls = true

	_, err := s.service.RequestRedeemAndBridge(s.ctx, actorFor(alice), 1000, alice, destinationScript)
	s.Equal(dErrors.CodeInsufficientLiquidity, dErrors.CodeOf(err))

	_, err = s.service.RequestRedeem(s.ctx, actorFor(alice), 1000, alice, alice)
	s.Equal(dErrors.CodeInsufficientLiquidity, dErrors.CodeOf(err))

	// The burns were compensated: shares, supply and totals all intact.
	balance, err := s.vault.Balance(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal(domain.Shares(10_000), balance)
	state, err := s.vault.State(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Shares(10_000), state.TotalSupply)
	total, err := s.vault.TotalAssets(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Sats(10_000), total)
	custody, err := s.service.CustodyBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Sats(0), custody)
}

// slowGateway lingers inside each recall so overlapping requests would
// meet inside the allocator if the queue let them run concurrently.
type slowGateway struct {
	*allocator.Fake
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func (g *slowGateway) Recall(ctx context.Context, amount domain.Sats) error {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	g.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	err := g.Fake.Recall(ctx, amount)
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return err
}

func (g *slowGateway) MaxInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxInFlight
}

func (s *QueueServiceSuite) TestConcurrentRequestsNeverStrandRecalledAssets() {
	gw := &slowGateway{Fake: allocator.NewFake()}
	vaultMem := ledgermemory.New(ledger.Config{Treasury: "acct-treasury"})
	sink := events.NewPublisher(eventsmemory.New())
	vault, err := ledger.New(vaultMem, sink, ledger.WithGateway(gw))
	s.Require().NoError(err)
	svc, err := queue.New(queuememory.New(), vault.QueuePort(), queue.NewFakeBridge(), sink)
	s.Require().NoError(err)

	// Two depositors, everything allocated: the allocator can honor two
	// full recalls, but alice's balance warrants only one.
	_, err = vault.Deposit(s.ctx, actorFor(alice), 10_000, alice)
	s.Require().NoError(err)
	_, err = vault.Deposit(s.ctx, actorFor(bob), 10_000, bob)
	s.Require().NoError(err)
	_, err = vault.Allocate(s.ctx, maintainer)
	s.Require().NoError(err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RequestRedeemAndBridge(s.ctx, actorFor(alice), 10_000, alice, destinationScript)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.Equal(dErrors.CodeInsufficientFunds, dErrors.CodeOf(err))
		}
	}
	s.Equal(1, succeeded)
	s.Equal(1, gw.MaxInFlight())

	// Alice's payout sits in custody, bob's funds stay at the allocator;
	// nothing fell between the two.
	custody, err := svc.CustodyBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Sats(10_000), custody)
	held, err := gw.Valuation(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Sats(10_000), held)
	total, err := vault.TotalAssets(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Sats(10_000), total)
	s.Equal(domain.Shares(10_000), vaultMem.SumBalances())
}

// =============================================================================
// Synchronous request path
// =============================================================================

func (s *QueueServiceSuite) TestRequestRedeemSettlesImmediately() {
	s.setExitFee(10)
	s.deposit(alice, 1_000_000)

	res, err := s.service.RequestRedeem(s.ctx, actorFor(alice), 500_000, bob, alice)
	s.Require().NoError(err)
	s.Positive(uint64(res.Fee))
	s.Equal(domain.Shares(500_000), res.Shares)

	// No record, no custody.
	custody, err := s.service.CustodyBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Sats(0), custody)
	_, err = s.service.Lookup(s.ctx, 1)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))

	recorded := s.log.ByAction(events.ActionRedeemRequested)
	s.Require().Len(recorded, 1)
	s.Equal(bob, recorded[0].Account)
}

// =============================================================================
// Finalize
// =============================================================================

func (s *QueueServiceSuite) TestFinalizeHappyPath() {
	s.setExitFee(5)
	s.deposit(alice, 100_000_000)
	req := s.request(100_000_000)

	err := s.service.FinalizeRedeemAndBridge(s.ctx, maintainer, req.ID, s.payloadFor(req))
	s.Require().NoError(err)

	s.Equal(1, s.bridge.Count())
	s.Equal(req.Redeemer, s.bridge.Dispatched[0].Redeemer)
	s.Equal(req.AssetAmount, s.bridge.Dispatched[0].AssetAmount)

	stored, err := s.service.Lookup(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(queue.StatusCompleted, stored.Status())
	s.NotNil(stored.CompletedAt)

	custody, err := s.service.CustodyBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Sats(0), custody)

	completed := s.log.ByAction(events.ActionRedeemCompleted)
	s.Require().Len(completed, 1)
	s.Equal(req.ID, completed[0].RequestID)
}

func (s *QueueServiceSuite) TestFinalizeIsExactlyOnce() {
	s.deposit(alice, 10_000)
	req := s.request(10_000)
	payload := s.payloadFor(req)

	s.Require().NoError(s.service.FinalizeRedeemAndBridge(s.ctx, maintainer, req.ID, payload))

	err := s.service.FinalizeRedeemAndBridge(s.ctx, maintainer, req.ID, payload)
	s.Equal(dErrors.CodeAlreadyCompleted, dErrors.CodeOf(err))
	s.Equal(1, s.bridge.Count())

	stored, err := s.service.Lookup(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(queue.StatusCompleted, stored.Status())
}

func (s *QueueServiceSuite) TestFinalizeRejectsTamperedDestination() {
	s.deposit(alice, 10_000)
	req := s.request(10_000)

	tampered, err := queue.SettlementPayload{
		Redeemer:          req.Redeemer,
		DestinationScript: []byte{0x00, 0x14, 0xba, 0xad, 0xf0, 0x0d},
		AssetAmount:       req.AssetAmount,
	}.Encode()
	s.Require().NoError(err)

	err = s.service.FinalizeRedeemAndBridge(s.ctx, maintainer, req.ID, tampered)
	s.Equal(dErrors.CodePayloadMismatch, dErrors.CodeOf(err))
	s.Zero(s.bridge.Count())

	// A rejected finalize mutates nothing.
	stored, err := s.service.Lookup(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(queue.StatusPending, stored.Status())
	s.Nil(stored.CompletedAt)
	custody, err := s.service.CustodyBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(req.AssetAmount, custody)
}

func (s *QueueServiceSuite) TestFinalizeRejectsWrongRedeemer() {
	s.deposit(alice, 10_000)
	req := s.request(10_000)

	forged, err := queue.SettlementPayload{
		Redeemer:          bob,
		DestinationScript: destinationScript,
		AssetAmount:       req.AssetAmount,
	}.Encode()
	s.Require().NoError(err)

	err = s.service.FinalizeRedeemAndBridge(s.ctx, maintainer, req.ID, forged)
	s.Equal(dErrors.CodePayloadMismatch, dErrors.CodeOf(err))
	s.Zero(s.bridge.Count())
}

func (s *QueueServiceSuite) TestFinalizeRejectsGarbagePayload() {
	s.deposit(alice, 10_000)
	req := s.request(10_000)

	err := s.service.FinalizeRedeemAndBridge(s.ctx, maintainer, req.ID, []byte("not json"))
	s.Equal(dErrors.CodePayloadMismatch, dErrors.CodeOf(err))
}

func (s *QueueServiceSuite) TestFinalizeFailsOnCustodyShortfall() {
	s.deposit(alice, 10_000)
	req := s.request(10_000)

	// Simulate custody drained below the request's amount.
	s.store.DrainCustody(1)

	err := s.service.FinalizeRedeemAndBridge(s.ctx, maintainer, req.ID, s.payloadFor(req))
	s.Equal(dErrors.CodeInsufficientFunds, dErrors.CodeOf(err))
	s.Zero(s.bridge.Count())

	stored, err := s.service.Lookup(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(queue.StatusPending, stored.Status())
}

func (s *QueueServiceSuite) TestFinalizeRequiresMaintainer() {
	s.deposit(alice, 10_000)
	req := s.request(10_000)

	err := s.service.FinalizeRedeemAndBridge(s.ctx, actorFor(alice), req.ID, s.payloadFor(req))
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))

	err = s.service.FinalizeRedeemAndBridge(s.ctx, governor, req.ID, s.payloadFor(req))
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
}

func (s *QueueServiceSuite) TestFinalizeUnknownRequest() {
	err := s.service.FinalizeRedeemAndBridge(s.ctx, maintainer, 42, []byte(`{}`))
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *QueueServiceSuite) TestFinalizeDispatchFailureNeverPaysTwice() {
	s.deposit(alice, 10_000)
	req := s.request(10_000)
	s.bridge.Fail = true

	err := s.service.FinalizeRedeemAndBridge(s.ctx, maintainer, req.ID, s.payloadFor(req))
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))

	// Completion committed before the dispatch: the claim is spent even
	// though the bridge never took the payload.
	stored, err := s.service.Lookup(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(queue.StatusCompleted, stored.Status())
	custody, err := s.service.CustodyBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Sats(0), custody)
	s.Zero(s.bridge.Count())
	s.Len(s.log.ByAction(events.ActionRedeemCompleted), 1)

	// A retry after the bridge recovers cannot re-dispatch; settlement
	// is the operator's to finish out of band.
	s.bridge.Fail = false
	err = s.service.FinalizeRedeemAndBridge(s.ctx, maintainer, req.ID, s.payloadFor(req))
	s.Equal(dErrors.CodeAlreadyCompleted, dErrors.CodeOf(err))
	s.Zero(s.bridge.Count())
}

// =============================================================================
// Lookup
// =============================================================================

func (s *QueueServiceSuite) TestListByRedeemer() {
	s.deposit(alice, 10_000)
	first := s.request(2000)
	second := s.request(3000)

	reqs, err := s.service.ListByRedeemer(s.ctx, alice)
	s.Require().NoError(err)
	s.Require().Len(reqs, 2)
	s.Equal(first.ID, reqs[0].ID)
	s.Equal(second.ID, reqs[1].ID)

	reqs, err = s.service.ListByRedeemer(s.ctx, bob)
	s.Require().NoError(err)
	s.Empty(reqs)
}
