package oauth

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
)

// TokenState is an immutable snapshot of the tokens held by the client. A new
// snapshot replaces the old one on every exchange or refresh.
type TokenState struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	Scope        string
	// Expiry is the absolute time the access token stops being valid.
	Expiry time.Time
	// ObtainedAt is when the token endpoint answered.
	ObtainedAt time.Time
}

func newTokenState(resp TokenResponse, previousRefreshToken string, now time.Time) *TokenState {
	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefreshToken
	}
	return &TokenState{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		RefreshToken: refreshToken,
		Scope:        resp.Scope,
		Expiry:       now.Add(resp.lifetime()),
		ObtainedAt:   now,
	}
}

// HasRefreshToken reports whether the state can be refreshed without a new sign-in.
func (t *TokenState) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// TimeToExpiry is the time left before the access token expires; negative once expired.
func (t *TokenState) TimeToExpiry(now time.Time) time.Duration {
	return t.Expiry.Sub(now)
}

// Valid reports whether the access token is present and unexpired at now.
func (t *TokenState) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.Expiry)
}

// OAuth2Token converts the snapshot for use with golang.org/x/oauth2 clients.
func (t *TokenState) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

// ErrNoToken is returned when no token has been obtained yet.
var ErrNoToken = errors.New("oauth: no token available, sign in first")

// ErrTokenExpired is returned when the access token expired and cannot be refreshed.
var ErrTokenExpired = errors.New("oauth: token expired, sign in again")

// TokenStore holds the current TokenState. Readers always observe a whole snapshot.
type TokenStore struct {
	current atomic.Pointer[TokenState]
}

// Load returns the current snapshot or nil.
func (s *TokenStore) Load() *TokenState {
	return s.current.Load()
}

// Swap installs next and returns the snapshot it replaced.
func (s *TokenStore) Swap(next *TokenState) *TokenState {
	return s.current.Swap(next)
}

// CompareAndSwap installs next only if old is still current.
func (s *TokenStore) CompareAndSwap(old, next *TokenState) bool {
	return s.current.CompareAndSwap(old, next)
}

// Clear drops the current snapshot.
func (s *TokenStore) Clear() {
	s.current.Store(nil)
}
