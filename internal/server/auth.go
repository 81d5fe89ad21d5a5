package server

import "crypto/subtle"

// Authenticator verifies HTTP Basic credentials against the configured pair.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator with the given credentials.
// If either username or password is empty, authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled returns true if authentication credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// Verify reports whether the presented credentials match the configured
// ones. Both comparisons are constant-time and both always run.
func (a *Authenticator) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	return userOK && passOK
}
