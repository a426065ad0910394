package domain

import (
	dErrors "aidpool/pkg/domain-errors"
)

// Role classifies what an actor may do. Roles come from the identity
// collaborator's token claims; the core only consumes them.
type Role string

const (
	RoleRequester Role = "requester"
	RoleAdmin     Role = "admin"
	RoleDonor     Role = "donor"
)

// ParseRole validates and returns a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role: "+s)
	}
	return r, nil
}

// IsValid checks the role is one of the supported enum values.
func (r Role) IsValid() bool {
	switch r {
	case RoleRequester, RoleAdmin, RoleDonor:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// University scopes admins to the beneficiaries they may act on. Free-form
// string assigned by the identity collaborator; the core only compares it.
type University string

func (u University) String() string { return string(u) }
func (u University) IsNil() bool    { return u == "" }
