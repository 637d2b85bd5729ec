package auth

import (
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/desertthunder/spotchat/internal/shared"
)

// refreshableTokenSource wraps an [oauth2.TokenSource] and reports every token
// whose access token differs from the last one seen.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func newRefreshableTokenSource(src oauth2.TokenSource, current string, cb func(*oauth2.Token)) *refreshableTokenSource {
	return &refreshableTokenSource{source: src, callback: cb, last: current}
}

// Token implements [oauth2.TokenSource]. A failed refresh means the stored grant is
// no longer usable, so it is reported as [shared.ErrNotAuthenticated].
func (s *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: token refresh failed: %v", shared.ErrNotAuthenticated, err)
	}

	s.mu.Lock()
	changed := token.AccessToken != s.last
	s.last = token.AccessToken
	s.mu.Unlock()

	if changed && s.callback != nil {
		s.notify(token)
	}
	return token, nil
}

// notify shields the API call from a panicking callback; the token is still valid.
func (s *refreshableTokenSource) notify(token *oauth2.Token) {
	defer func() { _ = recover() }()
	s.callback(token)
}
