package domain

import "fmt"

// Role is an authorization capability carried by an authenticated actor.
// Each mutating operation of the engine names the role it requires; the
// surfaces are deliberately distinct so a maintainer cannot reconfigure
// fees and governance cannot finalize withdrawals by accident.
type Role string

const (
	// RoleGovernance configures fees, treasury, dispatcher, and the
	// minimum deposit, and may recover reimbursement pool funds.
	RoleGovernance Role = "governance"
	// RolePauseAdmin may pause and unpause vault operations, nothing else.
	RolePauseAdmin Role = "pause_admin"
	// RoleMaintainer may allocate idle reserve and finalize queued
	// withdrawal requests.
	RoleMaintainer Role = "maintainer"
)

var knownRoles = map[Role]struct{}{
	RoleGovernance: {},
	RolePauseAdmin: {},
	RoleMaintainer: {},
}

// ParseRole validates and returns a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := knownRoles[r]; !ok {
		return "", fmt.Errorf("unknown role: %s", s)
	}
	return r, nil
}

// Actor is the authorization context passed into every mutating operation.
// It is built by the authentication middleware and never derived from
// ambient state inside services.
type Actor struct {
	Account AccountID
	Roles   []Role
}

// HasRole reports whether the actor carries the given role.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsNil returns true for an unauthenticated actor.
func (a Actor) IsNil() bool {
	return a.Account.IsNil()
}
