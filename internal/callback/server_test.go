package callback

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/authcode/internal/browser"
	"github.com/router-for-me/authcode/internal/config"
	"github.com/router-for-me/authcode/internal/oauth"
)

type stubCompleter struct {
	got     []string
	outcome oauth.AuthorizationOutcome
}

func (c *stubCompleter) Complete(uri string) oauth.AuthorizationOutcome {
	c.got = append(c.got, uri)
	return c.outcome
}

func TestIsLoopbackRedirect(t *testing.T) {
	cases := []struct {
		uri  string
		want bool
	}{
		{"http://localhost:8085/callback", true},
		{"http://127.0.0.1:1455/auth/callback", true},
		{"http://[::1]:9000/cb", true},
		{"https://localhost:8085/callback", false},
		{"http://example.com/callback", false},
		{"my-app:/oauth-callback/", false},
	}
	for _, tc := range cases {
		if got := IsLoopbackRedirect(tc.uri); got != tc.want {
			t.Errorf("IsLoopbackRedirect(%q) = %v, want %v", tc.uri, got, tc.want)
		}
	}
}

func TestNewServerRejectsCustomScheme(t *testing.T) {
	if _, err := NewServer(Options{RedirectURI: "my-app:/oauth-callback/", Completer: &stubCompleter{}}); err == nil {
		t.Fatal("expected an error for a custom scheme redirect")
	}
}

func TestHandleCallbackRendersResult(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		outcome    oauth.AuthorizationOutcome
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			outcome:    oauth.AuthorizationOutcome{Kind: oauth.OutcomeSuccess, Code: "XYZ", AttemptID: "a1"},
			wantStatus: http.StatusOK,
			wantBody:   "Authentication Successful!",
		},
		{
			name: "server error",
			outcome: oauth.AuthorizationOutcome{Kind: oauth.OutcomeFailure, Failure: &oauth.Failure{
				Kind: oauth.KindProtocol, Code: "access_denied", Description: "user <b>declined</b>",
			}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "access_denied: user &lt;b&gt;declined&lt;/b&gt;",
		},
		{
			name: "no pending request",
			outcome: oauth.AuthorizationOutcome{Kind: oauth.OutcomeFailure, Failure: &oauth.Failure{
				Kind: oauth.KindValidation, Code: oauth.CodeNoPendingRequest,
			}},
			wantStatus: http.StatusConflict,
			wantBody:   oauth.CodeNoPendingRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			completer := &stubCompleter{outcome: tc.outcome}
			s, err := NewServer(Options{RedirectURI: "http://localhost:8085/callback", Completer: completer})
			if err != nil {
				t.Fatalf("NewServer() error = %v", err)
			}

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=XYZ&state=S1", nil))

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Fatalf("body missing %q", tc.wantBody)
			}
			if len(completer.got) != 1 || completer.got[0] != "http://localhost:8085/callback?code=XYZ&state=S1" {
				t.Fatalf("completer got %v", completer.got)
			}
		})
	}
}

func TestHandleCallbackIgnoresOtherPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	completer := &stubCompleter{}
	s, err := NewServer(Options{RedirectURI: "http://localhost:8085/callback", Completer: completer})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if len(completer.got) != 0 {
		t.Fatalf("completer should not be called, got %v", completer.got)
	}
}

func TestServerCompletesPendingRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.OAuthConfig{
		ClientID:              "my_client_id",
		RedirectURI:           "http://127.0.0.1:0/callback",
		AuthorizationEndpoint: "https://auth.example.com/authorize",
		TokenEndpoint:         "https://auth.example.com/token",
		UseState:              true,
		AuthorizationTimeout:  time.Minute,
	}
	requester := oauth.NewRequester(cfg, browser.LauncherFunc(func(string) error { return nil }), nil)
	pending, err := requester.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	s, err := NewServer(Options{RedirectURI: cfg.RedirectURI, Completer: requester})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if err = s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		_ = s.Stop(context.Background())
	}()

	resp, err := http.Get("http://" + s.Addr() + "/callback?code=XYZ&state=" + pending.Request().State)
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	select {
	case outcome := <-pending.Done():
		if !outcome.Succeeded() || outcome.Code != "XYZ" {
			t.Fatalf("outcome = %+v", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
	}

	if err = s.Start(); err == nil {
		t.Fatal("second Start() should fail while running")
	}
}
