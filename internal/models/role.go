// internal/models/role.go
package models

import (
	"fmt"
	"strings"
)

// Role is the typed role of an actor in the permit workflow.
type Role string

const (
	RoleApplicant  Role = "applicant"
	RoleInspector  Role = "inspector"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Roles lists every known role.
var Roles = []Role{RoleApplicant, RoleInspector, RoleAdmin, RoleSuperAdmin}

// ParseRole normalizes a raw role name. Unknown names are rejected.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleApplicant, RoleInspector, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Privileged reports whether the role bypasses stage-order gating and may
// drive the application through its stages.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Satisfies reports whether r fulfils a requirement for role want.
// superadmin is a strict superset of admin.
func (r Role) Satisfies(want Role) bool {
	if r == want {
		return true
	}
	return r == RoleSuperAdmin && want == RoleAdmin
}

// User is the slice of an identity the workflow needs: who and in which role.
type User struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}
