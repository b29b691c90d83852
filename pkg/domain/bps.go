package domain

import "fmt"

// BasisPoints expresses a fee rate out of 10,000.
// Invariant: the value never exceeds BasisPointsScale.
//
// Usage: construct via ParseBasisPoints at trust boundaries to enforce the
// bound; direct casting bypasses validation.
type BasisPoints uint16

// BasisPointsScale is the denominator of the basis-point system: 10,000 bps
// equals 100%.
const BasisPointsScale BasisPoints = 10_000

// ParseBasisPoints validates and returns a BasisPoints value.
func ParseBasisPoints(v uint64) (BasisPoints, error) {
	if v > uint64(BasisPointsScale) {
		return 0, fmt.Errorf("basis points %d exceed scale %d", v, BasisPointsScale)
	}
	return BasisPoints(v), nil
}

// IsZero returns true for a zero rate.
func (b BasisPoints) IsZero() bool {
	return b == 0
}
