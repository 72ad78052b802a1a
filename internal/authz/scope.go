// Package authz decides which records a caller may touch.
//
// Role resolution is two pure functions: a role maps to a permission set, and
// a permission set plus an action maps to a scope. Both are computed once per
// request by the calling service and the resolved scope is passed explicitly
// into the Authorizer; nothing here reads ambient state.
package authz

// Scope is the breadth of records a caller may act on.
type Scope string

const (
	// ScopeAll allows any record inside the caller's organization.
	ScopeAll Scope = "all"
	// ScopeClient allows records belonging to clients assigned to the caller.
	ScopeClient Scope = "client"
	// ScopeOwn allows records whose subscriber affiliate is linked to the caller.
	ScopeOwn Scope = "own"
)

// Action names a gated operation.
type Action string

const (
	ActionClaimRead   Action = "claim.read"
	ActionClaimWrite  Action = "claim.write"
	ActionPolicyRead  Action = "policy.read"
	ActionPolicyWrite Action = "policy.write"
	ActionLookupRead  Action = "lookup.read"
)

// Permission grants one action at one scope.
type Permission struct {
	Action Action
	Scope  Scope
}

// Role names. Keep these stable; they are part of the token contract.
const (
	RoleOrgManager  = "org_manager"
	RoleClientAdmin = "client_admin"
	RoleMember      = "member"
)

var rolePermissions = map[string][]Permission{
	RoleOrgManager: {
		{ActionClaimRead, ScopeAll},
		{ActionClaimWrite, ScopeAll},
		{ActionPolicyRead, ScopeAll},
		{ActionPolicyWrite, ScopeAll},
		{ActionLookupRead, ScopeAll},
	},
	RoleClientAdmin: {
		{ActionClaimRead, ScopeClient},
		{ActionClaimWrite, ScopeClient},
		{ActionPolicyRead, ScopeClient},
		{ActionPolicyWrite, ScopeClient},
		{ActionLookupRead, ScopeClient},
	},
	RoleMember: {
		{ActionClaimRead, ScopeOwn},
		{ActionClaimWrite, ScopeOwn},
		{ActionPolicyRead, ScopeOwn},
		{ActionLookupRead, ScopeOwn},
	},
}

// PermissionsForRole returns the permission set for a role, nil for unknown
// roles. Callers treat nil as a configuration fault, not a denial.
func PermissionsForRole(role string) []Permission {
	return rolePermissions[role]
}

// ScopeForAction resolves the scope a permission set grants for an action.
// The second result is false when the action is not granted at all.
func ScopeForAction(perms []Permission, action Action) (Scope, bool) {
	for _, p := range perms {
		if p.Action == action {
			return p.Scope, true
		}
	}
	return "", false
}
