package events

import (
	"time"

	"satvault/pkg/domain"
)

// Action identifies the state transition a ledger event records.
type Action string

const (
	ActionDeposit          Action = "deposit"
	ActionMint             Action = "mint"
	ActionWithdraw         Action = "withdraw"
	ActionRedeem           Action = "redeem"
	ActionAllocated        Action = "allocated"
	ActionRedeemRequested  Action = "redeem_requested"
	ActionRedeemCompleted  Action = "redeem_completed"
	ActionFeeRequested     Action = "fee_requested"
	ActionRequestCreated   Action = "request_created"
	ActionReimbursed       Action = "reimbursed"
	ActionPoolFunded       Action = "pool_funded"
	ActionPoolWithdrawn    Action = "pool_withdrawn"
	ActionFeesUpdated      Action = "fees_updated"
	ActionTreasuryUpdated  Action = "treasury_updated"
	ActionDispatcherSet    Action = "dispatcher_updated"
	ActionMinDepositSet    Action = "min_deposit_updated"
	ActionPaused           Action = "paused"
	ActionUnpaused         Action = "unpaused"
	ActionApproval         Action = "approval"
)

// Event is one append-only record of a state transition. Every mutating
// operation of the engine emits at least one; together they are sufficient
// for the indexing collaborator to reconstruct the ledger externally.
// Events are never retracted.
//
// Keep the struct transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Timestamp time.Time
	Action    Action

	// Actor is the authenticated caller; Account is the subject
	// (receiver, redeemer, owner) the transition applies to.
	Actor   domain.AccountID
	Account domain.AccountID

	RequestID       domain.RequestID
	Assets          domain.Sats
	Shares          domain.Shares
	Fee             domain.Sats
	DestinationHash string
}
