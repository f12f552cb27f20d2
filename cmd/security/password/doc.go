// Package password hashes and verifies account passwords with bcrypt.
//
// It also carries the length policy applied at signup and password change.
// bcrypt silently truncates input beyond 72 bytes, so the policy rejects
// longer passwords instead of letting two distinct secrets collide.
package password
