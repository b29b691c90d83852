package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the share ledger.
type Metrics struct {
	// Deposit and withdrawal volumes in satoshi
	DepositSats    prometheus.Counter
	WithdrawalSats prometheus.Counter

	// Share supply movement
	SharesMinted prometheus.Counter
	SharesBurned prometheus.Counter

	// Assets pushed to the allocator
	AllocatedSats prometheus.Counter
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		DepositSats: promauto.NewCounter(prometheus.CounterOpts{
			Name: "satvault_ledger_deposit_sats_total",
			Help: "Total gross asset value deposited, in satoshi",
		}),
		WithdrawalSats: promauto.NewCounter(prometheus.CounterOpts{
			Name: "satvault_ledger_withdrawal_sats_total",
			Help: "Total asset value withdrawn, in satoshi",
		}),
		SharesMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "satvault_ledger_shares_minted_total",
			Help: "Total shares minted",
		}),
		SharesBurned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "satvault_ledger_shares_burned_total",
			Help: "Total shares burned",
		}),
		AllocatedSats: promauto.NewCounter(prometheus.CounterOpts{
			Name: "satvault_ledger_allocated_sats_total",
			Help: "Total asset value pushed to the allocator, in satoshi",
		}),
	}
}

// ObserveDeposit records a completed deposit or mint.
func (m *Metrics) ObserveDeposit(assets, shares uint64) {
	if m != nil {
		m.DepositSats.Add(float64(assets))
		m.SharesMinted.Add(float64(shares))
	}
}

// ObserveWithdrawal records a completed withdraw or redeem.
func (m *Metrics) ObserveWithdrawal(assets, shares uint64) {
	if m != nil {
		m.WithdrawalSats.Add(float64(assets))
		m.SharesBurned.Add(float64(shares))
	}
}

// ObserveAllocation records assets pushed to the allocator.
func (m *Metrics) ObserveAllocation(assets uint64) {
	if m != nil {
		m.AllocatedSats.Add(float64(assets))
	}
}
