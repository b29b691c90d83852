package domain

import (
	"fmt"
	"strconv"
)

// Sats is an amount of the custodied asset in integer base units.
// All vault accounting is done in base units; there are no fractional
// amounts anywhere in the engine.
type Sats uint64

// ParseSats validates and returns a Sats amount from its decimal string form.
func ParseSats(s string) (Sats, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Sats(v), nil
}

// String returns the decimal representation of the amount.
func (a Sats) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// IsZero returns true for a zero amount.
func (a Sats) IsZero() bool {
	return a == 0
}

// Shares is a quantity of vault shares. Shares are a proportional claim on
// the vault's total reserve; they are minted on deposit and burned on
// redemption and never exist outside the share ledger.
type Shares uint64

// ParseShares validates and returns a Shares quantity from its decimal
// string form.
func ParseShares(s string) (Shares, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid share quantity %q: %w", s, err)
	}
	return Shares(v), nil
}

// String returns the decimal representation of the share quantity.
func (s Shares) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// IsZero returns true for a zero share quantity.
func (s Shares) IsZero() bool {
	return s == 0
}
