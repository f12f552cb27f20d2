package identity

// Principal is the authenticated identity of a request, decoded from a
// verified token. It is never persisted and never re-read from the store.
type Principal struct {
	ID       string
	Username string
	Role     Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
