package auth

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when a principal lacks the capability for an action.
var ErrForbidden = errors.New("permission denied")

// Role is the capability set carried by a token.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleBeneficiary Role = "beneficiary"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleBeneficiary
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    Role
}

// Action is an engine operation subject to authorization.
type Action string

const (
	ActionManage  Action = "manage"  // create, activate, complete, cancel
	ActionRecover Action = "recover" // sweep unclaimed funds
	ActionClaim   Action = "claim"
	ActionRead    Action = "read"
	ActionAudit   Action = "audit" // reconcile, list claims
)

// Policy is the single capability check in front of the engine.
type Policy struct{}

// Authorize decides whether p may perform action. beneficiaryID is the
// beneficiary the action concerns, if any.
func (Policy) Authorize(p Principal, action Action, beneficiaryID string) error {
	if p.Subject == "" || !p.Role.Valid() {
		return fmt.Errorf("%w: unauthenticated", ErrForbidden)
	}
	if p.Role == RoleAdmin {
		return nil
	}

	switch action {
	case ActionRead:
		return nil
	case ActionClaim:
		// Beneficiaries act only for themselves.
		if beneficiaryID == p.Subject {
			return nil
		}
		return fmt.Errorf("%w: %s may not claim for %s", ErrForbidden, p.Subject, beneficiaryID)
	}
	return fmt.Errorf("%w: %s requires admin", ErrForbidden, action)
}
