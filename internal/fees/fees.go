// Package fees computes entry and exit fees in basis points. Both
// primitives round up, in the protocol's favor, and are total for every
// uint64 amount: intermediates go through 256-bit integers so no input can
// overflow or underflow.
package fees

import (
	"github.com/holiman/uint256"

	"satvault/pkg/domain"
)

// OnRaw returns the fee added on top of a stated amount:
//
//	ceil(amount * bps / 10000)
//
// Used when minting an exact share count or withdrawing an exact asset
// amount, where the caller pays the fee in addition to the amount.
func OnRaw(amount domain.Sats, bps domain.BasisPoints) domain.Sats {
	return mulDivUp(uint64(amount), uint64(bps), uint64(domain.BasisPointsScale))
}

// OnTotal returns the fee already included in a stated gross amount:
//
//	ceil(amount * bps / (bps + 10000))
//
// Used when depositing or redeeming an exact gross amount, so that
// net + OnRaw(net) never exceeds the gross the caller stated.
func OnTotal(amount domain.Sats, bps domain.BasisPoints) domain.Sats {
	return mulDivUp(uint64(amount), uint64(bps), uint64(bps)+uint64(domain.BasisPointsScale))
}

// mulDivUp computes ceil(a*b/den) with a 256-bit intermediate product.
// den is never zero for either fee primitive: OnRaw divides by the scale
// and OnTotal by bps+scale.
func mulDivUp(a, b, den uint64) domain.Sats {
	num := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	d := uint256.NewInt(den)
	quo, rem := new(uint256.Int).DivMod(num, d, new(uint256.Int))
	if !rem.IsZero() {
		quo.AddUint64(quo, 1)
	}
	return domain.Sats(quo.Uint64())
}
