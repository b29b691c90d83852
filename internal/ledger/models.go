package ledger

import "satvault/pkg/domain"

// Config is the governance-owned vault configuration. Fee rates are capped
// at the basis-point scale by construction of domain.BasisPoints.
type Config struct {
	EntryFeeBps domain.BasisPoints
	ExitFeeBps  domain.BasisPoints
	Treasury    domain.AccountID
	// Dispatcher is the deposit-intake collaborator allowed to draw from
	// the reimbursement pool.
	Dispatcher domain.AccountID
	MinDeposit domain.Sats
	Paused     bool
}

// State is a read snapshot of the vault's accounting totals.
type State struct {
	TotalSupply    domain.Shares
	LocalBalance   domain.Sats
	AllocatedValue domain.Sats
	TotalAssets    domain.Sats
}

// DepositResult reports the outcome of a deposit or mint.
type DepositResult struct {
	Assets domain.Sats
	Shares domain.Shares
	Fee    domain.Sats
}

// WithdrawResult reports the outcome of a withdraw or redeem.
type WithdrawResult struct {
	Assets domain.Sats
	Shares domain.Shares
	Fee    domain.Sats
}
