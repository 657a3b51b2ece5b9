package oauth

import (
	"sync"
	"time"

	"github.com/router-for-me/authcode/internal/config"
)

const testRedirectURI = "my-app:/oauth-callback/"

func testConfig(tokenEndpoint string) *config.OAuthConfig {
	return &config.OAuthConfig{
		ClientID:              "my_client_id",
		ClientSecret:          "my_client_secret",
		RedirectURI:           testRedirectURI,
		Scope:                 "read write",
		AuthorizationEndpoint: "https://auth.example.com/authorize",
		TokenEndpoint:         tokenEndpoint,
		UseState:              true,
		UsePKCE:               true,
		AuthorizationTimeout:  time.Minute,
		RequestTimeout:        5 * time.Second,
		RefreshLead:           time.Minute,
		AutoRefresh:           true,
	}
}

type reportedTokens struct {
	access, tokenType, refresh string
}

type recordingDisplay struct {
	mu       sync.Mutex
	statuses []string
	tokens   []reportedTokens
}

func (d *recordingDisplay) ReportStatus(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, message)
}

func (d *recordingDisplay) ReportTokens(accessToken, tokenType, refreshToken string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, reportedTokens{accessToken, tokenType, refreshToken})
}

func (d *recordingDisplay) Statuses() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.statuses...)
}

func (d *recordingDisplay) Tokens() []reportedTokens {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]reportedTokens(nil), d.tokens...)
}

type recordingLauncher struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (l *recordingLauncher) Launch(url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, url)
	return l.err
}

func (l *recordingLauncher) URLs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.urls...)
}

func fixedState(state string) func() (string, error) {
	return func() (string, error) { return state, nil }
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
