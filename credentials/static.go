package credentials

// Static is a Provider that always returns the same fixed credentials.
// Useful for tests and for environments where credentials are injected
// directly rather than mounted as files.
type Static struct {
	snapshot Snapshot
}

// NewStatic creates a Provider serving the given credentials.
func NewStatic(client ClientCredential, user UserCredential) *Static {
	return &Static{snapshot: Snapshot{Client: client, User: user}}
}

// Current returns the fixed snapshot.
func (s *Static) Current() Snapshot {
	return s.snapshot
}
