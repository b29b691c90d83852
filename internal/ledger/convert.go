package ledger

import (
	"github.com/holiman/uint256"

	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
)

// Share/asset conversion with virtual offsets.
//
// Conversions add one virtual asset and one virtual share to the totals.
// This keeps the empty vault well defined (first deposit mints 1:1) and
// removes the flash-mint-then-donate lever: no single caller can move the
// share price enough within one operation to profit from rounding, because
// the virtual participant absorbs the manipulation.
//
// Rounding always favors the pool: share mints floor, share burns for an
// exact asset amount ceil, asset payouts floor.

// toShares returns floor(assets * (supply+1) / (totalAssets+1)).
func toShares(assets domain.Sats, totalAssets domain.Sats, supply domain.Shares) (domain.Shares, error) {
	v, err := mulDiv(uint64(assets), uint64(supply)+1, uint64(totalAssets)+1, false)
	return domain.Shares(v), err
}

// toAssets returns floor(shares * (totalAssets+1) / (supply+1)).
func toAssets(shares domain.Shares, totalAssets domain.Sats, supply domain.Shares) (domain.Sats, error) {
	v, err := mulDiv(uint64(shares), uint64(totalAssets)+1, uint64(supply)+1, false)
	return domain.Sats(v), err
}

// toSharesUp is the ceiling counterpart of toShares, used when burning
// shares to release an exact asset amount.
func toSharesUp(assets domain.Sats, totalAssets domain.Sats, supply domain.Shares) (domain.Shares, error) {
	v, err := mulDiv(uint64(assets), uint64(supply)+1, uint64(totalAssets)+1, true)
	return domain.Shares(v), err
}

// toAssetsUp is the ceiling counterpart of toAssets, used when pricing an
// exact share mint.
func toAssetsUp(shares domain.Shares, totalAssets domain.Sats, supply domain.Shares) (domain.Sats, error) {
	v, err := mulDiv(uint64(shares), uint64(totalAssets)+1, uint64(supply)+1, true)
	return domain.Sats(v), err
}

// mulDiv computes a*b/den with a 256-bit intermediate, flooring or ceiling.
// The result must fit uint64; a conversion that does not is a caller error
// (the requested quantity is not representable in this vault).
func mulDiv(a, b, den uint64, roundUp bool) (uint64, error) {
	num := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quo, rem := new(uint256.Int).DivMod(num, uint256.NewInt(den), new(uint256.Int))
	if roundUp && !rem.IsZero() {
		quo.AddUint64(quo, 1)
	}
	if !quo.IsUint64() {
		return 0, dErrors.New(dErrors.CodeBadRequest, "conversion result out of range")
	}
	return quo.Uint64(), nil
}
