// Package forum implements topics and comments: storage, the service that
// applies ownership policy, and the HTTP handlers.
//
// Resources store their creator's id only. Author usernames are resolved
// through the credential store at read time, and a creator that no longer
// exists simply yields no author.
package forum
