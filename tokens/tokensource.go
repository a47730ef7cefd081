package tokens

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource returns an oauth2.TokenSource view of the named slot, for
// interoperability with code built on golang.org/x/oauth2 (for example
// oauth2.NewClient).
func (m *Manager) TokenSource(slotName string) oauth2.TokenSource {
	return &slotTokenSource{manager: m, slot: slotName}
}

type slotTokenSource struct {
	manager *Manager
	slot    string
}

func (ts *slotTokenSource) Token() (*oauth2.Token, error) {
	tok, err := ts.manager.GetToken(context.Background(), ts.slot)
	if err != nil {
		return nil, err
	}
	return tok.OAuth2Token(), nil
}
