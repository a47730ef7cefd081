// Package credentials loads and holds the secret material used to
// request access tokens.
//
// A Store reads a client credential and a user credential from two JSON
// files in a configured directory and exposes them as an immutable
// Snapshot. Reload re-reads the files and atomically replaces the
// snapshot; on failure the previous snapshot stays in effect, so a
// half-rotated credential directory never takes the client down.
//
// The client credentials file must be of the following form:
//
//	{"client_id": "id", "client_secret": "secret"}
//
// The user credentials file must be of the following form:
//
//	{"application_username": "name", "application_password": "password"}
package credentials

import "errors"

var (
	// ErrNotFound indicates that a required credentials file is absent.
	ErrNotFound = errors.New("credentials: file not found")

	// ErrMalformed indicates that a credentials file exists but could not
	// be parsed, or is missing a required field.
	ErrMalformed = errors.New("credentials: file malformed")
)

// ClientCredential identifies the application itself against the token
// provider.
type ClientCredential struct {
	ID     string
	Secret string
}

// UserCredential identifies the resource owner for the password grant.
type UserCredential struct {
	Username string
	Password string
}

// Snapshot is an immutable view of both credentials, taken at load time.
// Callers receive it by value and never observe a half-updated pair.
type Snapshot struct {
	Client ClientCredential
	User   UserCredential
}

// Provider hands out the current credentials snapshot without I/O.
type Provider interface {
	Current() Snapshot
}

// Logger is an interface for optional logging. Implementations can log
// reload events if desired.
type Logger interface {
	Printf(format string, args ...any)
}
