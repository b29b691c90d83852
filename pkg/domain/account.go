package domain

import (
	"fmt"
	"strings"
)

// AccountID identifies a depositor, treasury, or collaborator account. The
// engine treats account identifiers as opaque strings; validity at this
// layer means "well formed", not "exists on some network".
//
// Usage: construct via ParseAccountID at trust boundaries; direct casting
// bypasses validation.
type AccountID string

const maxAccountIDLen = 128

// ParseAccountID validates and returns an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("account id is empty")
	}
	if len(s) > maxAccountIDLen {
		return "", fmt.Errorf("account id exceeds %d characters", maxAccountIDLen)
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", fmt.Errorf("account id contains whitespace")
	}
	return AccountID(s), nil
}

// String returns the string representation of the account id.
func (a AccountID) String() string {
	return string(a)
}

// IsNil returns true if the account id is empty.
func (a AccountID) IsNil() bool {
	return a == ""
}

// RequestID identifies a queued withdrawal request. IDs are assigned from a
// monotonic counter starting at 1; zero is never a valid request id.
type RequestID uint64

// IsNil returns true for the zero request id.
func (r RequestID) IsNil() bool {
	return r == 0
}
