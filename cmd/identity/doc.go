// Package identity owns user accounts: the credential store boundary and the
// accounts service that is the only place passwords are hashed or checked.
//
// Store implementations (memory, PostgreSQL, SQLite) persist hashes only;
// they never see plaintext passwords.
package identity
