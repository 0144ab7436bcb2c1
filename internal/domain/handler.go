package domain

import (
	"fmt"
	"strings"
)

// DefaultCapacity is the number of active items a handler may hold before
// being reported as overloaded, when no capacity is declared.
const DefaultCapacity = 20

// Role identifies what an acting user is permitted to do.
type Role string

const (
	RoleIntakeClerk    Role = "INTAKE_CLERK"
	RoleScanOperator   Role = "SCAN_OPERATOR"
	RoleTeamLead       Role = "TEAM_LEAD"
	RoleCaseHandler    Role = "CASE_HANDLER"
	RoleFinanceOfficer Role = "FINANCE_OFFICER"
	RoleAdministrator  Role = "ADMINISTRATOR"
	// RoleSystem is used by the reconciler; it is never assigned to a user.
	RoleSystem Role = "SYSTEM"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	switch r {
	case RoleIntakeClerk, RoleScanOperator, RoleTeamLead, RoleCaseHandler,
		RoleFinanceOfficer, RoleAdministrator, RoleSystem:
		return true
	}
	return false
}

// CanAssign reports whether the role may assign or reassign work.
func (r Role) CanAssign() bool {
	return r == RoleTeamLead || r == RoleAdministrator
}

// CanReceiveWork reports whether a user with this role may be an assignment target.
func (r Role) CanReceiveWork() bool {
	return r == RoleCaseHandler || r == RoleTeamLead
}

func ParseRoleFromString(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() || r == RoleSystem {
		return "", fmt.Errorf("%w: invalid role %q", ErrValidation, s)
	}
	return r, nil
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID string
	Role   Role
}

// SystemActor is the identity the reconciler acts under.
var SystemActor = Actor{UserID: "system", Role: RoleSystem}

// Handler is a staff user who can hold assignments.
type Handler struct {
	ID       string
	FullName string
	Role     Role
	Active   bool
	Capacity *int
}

// EffectiveCapacity returns the declared capacity or DefaultCapacity.
func (h *Handler) EffectiveCapacity() int {
	if h == nil || h.Capacity == nil || *h.Capacity <= 0 {
		return DefaultCapacity
	}
	return *h.Capacity
}
