// Package session authenticates requests from their bearer token and gates
// handlers by role.
//
// The Guard is stateless: the Principal comes entirely from the verified
// token's claims and the credential store is never consulted. A role change
// or account deletion therefore takes effect only when the token expires.
//
// Status contract:
//   - no usable Authorization header: 401
//   - a token that fails verification (bad signature, malformed, expired): 403
//   - an authenticated principal whose role is not allowed: 403
package session
