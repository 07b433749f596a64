package auth

import (
	"context"
	"sync"

	"golang.org/x/oauth2"
)

// TokenSource returns a source for u's Google token that refreshes expired
// access tokens through the OAuth config. It returns nil when u has no
// token or Google login is not configured.
func (h *Handler) TokenSource(ctx context.Context, u *User) *RefreshingTokenSource {
	if h.oauth == nil || !u.HasToken() {
		return nil
	}
	initial := *u.Token
	return &RefreshingTokenSource{
		base:    h.oauth.TokenSource(h.clientContext(ctx), &initial),
		initial: initial.AccessToken,
	}
}

// RefreshingTokenSource wraps an oauth2 token source and remembers whether
// it had to refresh.
type RefreshingTokenSource struct {
	base    oauth2.TokenSource
	initial string

	mu   sync.Mutex
	last *oauth2.Token
}

// Token returns a valid token, refreshing if needed.
func (t *RefreshingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := t.base.Token()
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.last = tok
	t.mu.Unlock()
	return tok, nil
}

// Refreshed returns the new token when a refresh happened.
func (t *RefreshingTokenSource) Refreshed() (*oauth2.Token, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil || t.last.AccessToken == t.initial {
		return nil, false
	}
	return t.last, true
}
