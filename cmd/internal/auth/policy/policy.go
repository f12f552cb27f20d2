// Package policy decides whether a principal may modify an owned resource.
//
// Existence is checked before ownership: a missing resource is DenyNotFound
// even for admins, and a present resource is Allow only for its creator or
// an admin. Callers map decisions to transport status codes.
package policy

import "github.com/Azuko9/forum-app/cmd/identity"

// Decision is the outcome of an ownership check.
type Decision int

const (
	DenyNotFound Decision = iota
	DenyForbidden
	Allow
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyForbidden:
		return "deny_forbidden"
	default:
		return "deny_not_found"
	}
}

// Owned is anything with a creator.
type Owned interface {
	OwnerID() string
}

// Permit reports whether p may modify a resource created by ownerID.
func Permit(p identity.Principal, ownerID string) bool {
	if p.Role == identity.RoleAdmin {
		return true
	}
	return p.ID != "" && ownerID == p.ID
}

// Evaluate applies the existence check, then Permit.
func Evaluate(p identity.Principal, resource Owned, found bool) Decision {
	if !found || resource == nil {
		return DenyNotFound
	}
	if !Permit(p, resource.OwnerID()) {
		return DenyForbidden
	}
	return Allow
}
