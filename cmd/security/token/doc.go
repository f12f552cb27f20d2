// Package token issues and verifies the signed bearer tokens used for
// stateless request authentication.
//
// Tokens are HS256 JWTs carrying the user's id, username and role with a
// fixed lifetime (one hour by default). The signing secret is supplied once
// at construction through Config; nothing in this package reads the
// environment except FromEnv.
//
// Every verification failure (bad signature, malformed input, wrong
// algorithm, missing or past expiry, wrong issuer) is reported as an error
// wrapping ErrInvalidToken so callers can map it to a single response.
package token
