package oauth

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestRequester(t *testing.T) (*Requester, *recordingLauncher, *recordingDisplay) {
	t.Helper()
	launcher := &recordingLauncher{}
	display := &recordingDisplay{}
	return NewRequester(testConfig("https://auth.example.com/token"), launcher, display), launcher, display
}

func TestBeginBuildsAuthorizationURL(t *testing.T) {
	r, launcher, _ := newTestRequester(t)
	r.newState = fixedState("S1")

	p, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	urls := launcher.URLs()
	if len(urls) != 1 || urls[0] != p.URL() {
		t.Fatalf("launcher urls = %v, want [%s]", urls, p.URL())
	}

	u, err := url.Parse(p.URL())
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Host != "auth.example.com" || u.Path != "/authorize" {
		t.Fatalf("url = %s, want authorization endpoint", p.URL())
	}
	q := u.Query()
	want := map[string]string{
		"client_id":             "my_client_id",
		"redirect_uri":          testRedirectURI,
		"response_type":         "code",
		"scope":                 "read write",
		"state":                 "S1",
		"code_challenge_method": "S256",
		"code_challenge":        p.Request().CodeChallenge,
	}
	for key, value := range want {
		if got := q.Get(key); got != value {
			t.Errorf("query %s = %q, want %q", key, got, value)
		}
	}
	if p.Request().CodeVerifier == "" {
		t.Fatal("expected a code verifier")
	}
}

func TestBeginOmitsStateAndPKCEWhenDisabled(t *testing.T) {
	r, _, _ := newTestRequester(t)
	r.cfg.UseState = false
	r.cfg.UsePKCE = false

	p, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if strings.Contains(p.URL(), "state=") || strings.Contains(p.URL(), "code_challenge") {
		t.Fatalf("url = %s, want no state or code challenge", p.URL())
	}

	outcome := r.Complete(testRedirectURI + "?code=XYZ")
	if !outcome.Succeeded() || outcome.Code != "XYZ" {
		t.Fatalf("outcome = %+v, want success with code XYZ", outcome)
	}
	if outcome.CodeVerifier != "" {
		t.Fatalf("code verifier = %q, want empty", outcome.CodeVerifier)
	}
}

func TestBeginRejectsSecondPendingRequest(t *testing.T) {
	r, _, _ := newTestRequester(t)
	if _, err := r.Begin(); err != nil {
		t.Fatalf("first Begin() error = %v", err)
	}
	_, err := r.Begin()
	if !IsCode(err, CodeRequestInProgress) {
		t.Fatalf("second Begin() error = %v, want %s", err, CodeRequestInProgress)
	}
}

func TestBeginReportsURLWhenLaunchFails(t *testing.T) {
	r, launcher, display := newTestRequester(t)
	launcher.err = errors.New("no display")

	p, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	found := false
	for _, status := range display.Statuses() {
		if strings.Contains(status, p.URL()) {
			found = true
		}
	}
	if !found {
		t.Fatalf("statuses = %v, want one containing the authorization url", display.Statuses())
	}
	if _, ok := r.Pending(); !ok {
		t.Fatal("expected the attempt to stay pending after a launch failure")
	}
}

func TestCompleteStateMismatch(t *testing.T) {
	issued := []string{"S1", "0123456789abcdef0123456789abcdef", "a"}
	for _, state := range issued {
		t.Run(state, func(t *testing.T) {
			r, _, _ := newTestRequester(t)
			r.newState = fixedState(state)
			if _, err := r.Begin(); err != nil {
				t.Fatalf("Begin() error = %v", err)
			}
			outcome := r.Complete(testRedirectURI + "?code=XYZ&state=" + url.QueryEscape(state+"x"))
			if outcome.Kind != OutcomeFailure || outcome.Failure.Code != CodeStateMismatch {
				t.Fatalf("outcome = %+v, want %s", outcome, CodeStateMismatch)
			}
		})
	}
}

func TestCompleteMissingStateIsMismatch(t *testing.T) {
	r, _, _ := newTestRequester(t)
	if _, err := r.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	outcome := r.Complete(testRedirectURI + "?code=XYZ")
	if outcome.Failure == nil || outcome.Failure.Code != CodeStateMismatch {
		t.Fatalf("outcome = %+v, want %s", outcome, CodeStateMismatch)
	}
}

func TestCompleteRejectsForeignRedirectURI(t *testing.T) {
	cases := []struct {
		name     string
		callback string
	}{
		{"other scheme", "other-app:/oauth-callback/?code=XYZ&state=S1"},
		{"other path", "my-app:/elsewhere/?code=XYZ&state=S1"},
		{"shorter path", "my-app:/oauth?code=XYZ&state=S1"},
		{"http", "https://evil.example.com/oauth-callback/?code=XYZ&state=S1"},
		{"empty", ""},
		{"unparseable", "%zz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _, _ := newTestRequester(t)
			r.newState = fixedState("S1")
			if _, err := r.Begin(); err != nil {
				t.Fatalf("Begin() error = %v", err)
			}
			outcome := r.Complete(tc.callback)
			if outcome.Failure == nil || outcome.Failure.Code != CodeInvalidResponse {
				t.Fatalf("outcome = %+v, want %s", outcome, CodeInvalidResponse)
			}
		})
	}
}

func TestCompleteTwiceYieldsNoPendingRequest(t *testing.T) {
	r, _, _ := newTestRequester(t)
	r.newState = fixedState("S1")
	p, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	callback := testRedirectURI + "?code=XYZ&state=S1"
	first := r.Complete(callback)
	if !first.Succeeded() || first.Code != "XYZ" {
		t.Fatalf("first outcome = %+v, want success", first)
	}
	second := r.Complete(callback)
	if second.Failure == nil || second.Failure.Code != CodeNoPendingRequest {
		t.Fatalf("second outcome = %+v, want %s", second, CodeNoPendingRequest)
	}

	select {
	case delivered := <-p.Done():
		if delivered.Code != "XYZ" {
			t.Fatalf("delivered outcome = %+v", delivered)
		}
	default:
		t.Fatal("expected the outcome on Done()")
	}
	select {
	case extra := <-p.Done():
		t.Fatalf("unexpected second outcome %+v", extra)
	default:
	}
}

func TestCompleteFailureClearsPendingRequest(t *testing.T) {
	r, _, _ := newTestRequester(t)
	r.newState = fixedState("S1")
	if _, err := r.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if outcome := r.Complete(testRedirectURI + "?code=XYZ&state=nope"); outcome.Succeeded() {
		t.Fatal("expected failure")
	}
	if _, ok := r.Pending(); ok {
		t.Fatal("pending request should be cleared after a failed callback")
	}
	if _, err := r.Begin(); err != nil {
		t.Fatalf("Begin() after failure error = %v", err)
	}
}

func TestCompleteServerError(t *testing.T) {
	r, _, _ := newTestRequester(t)
	r.newState = fixedState("S1")
	if _, err := r.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	outcome := r.Complete(testRedirectURI + "?error=access_denied&error_description=user+said+no&state=S1")
	if outcome.Failure == nil {
		t.Fatalf("outcome = %+v, want failure", outcome)
	}
	if outcome.Failure.Kind != KindProtocol || outcome.Failure.Code != "access_denied" || outcome.Failure.Description != "user said no" {
		t.Fatalf("failure = %+v", outcome.Failure)
	}
	if got := outcome.Failure.Message(); got != "OAuth2 Error: access_denied\nDescription: user said no" {
		t.Fatalf("message = %q", got)
	}
}

func TestCompleteMissingCode(t *testing.T) {
	r, _, _ := newTestRequester(t)
	r.newState = fixedState("S1")
	if _, err := r.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	outcome := r.Complete(testRedirectURI + "?state=S1")
	if outcome.Failure == nil || outcome.Failure.Code != CodeInvalidResponse {
		t.Fatalf("outcome = %+v, want %s", outcome, CodeInvalidResponse)
	}
}

func TestCompleteReadsFragmentParameters(t *testing.T) {
	r, _, _ := newTestRequester(t)
	r.newState = fixedState("S1")
	if _, err := r.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	outcome := r.Complete(testRedirectURI + "#code=XYZ&state=S1")
	if !outcome.Succeeded() || outcome.Code != "XYZ" {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
}

func TestCompleteWithoutBegin(t *testing.T) {
	r, _, _ := newTestRequester(t)
	outcome := r.Complete(testRedirectURI + "?code=XYZ")
	if outcome.Failure == nil || outcome.Failure.Code != CodeNoPendingRequest {
		t.Fatalf("outcome = %+v, want %s", outcome, CodeNoPendingRequest)
	}
}

func TestCancelMakesLateCallbackNoOp(t *testing.T) {
	r, _, _ := newTestRequester(t)
	r.newState = fixedState("S1")
	p, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if !r.Cancel() {
		t.Fatal("Cancel() = false, want true")
	}
	if r.Cancel() {
		t.Fatal("second Cancel() = true, want false")
	}
	if outcome := <-p.Done(); outcome.Kind != OutcomeCancelled {
		t.Fatalf("outcome = %+v, want cancelled", outcome)
	}
	late := r.Complete(testRedirectURI + "?code=XYZ&state=S1")
	if late.Failure == nil || late.Failure.Code != CodeNoPendingRequest {
		t.Fatalf("late outcome = %+v, want %s", late, CodeNoPendingRequest)
	}
}

func TestPendingRequestTimesOut(t *testing.T) {
	r, _, _ := newTestRequester(t)
	r.cfg.AuthorizationTimeout = 20 * time.Millisecond
	p, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	select {
	case outcome := <-p.Done():
		if outcome.Failure == nil || outcome.Failure.Code != CodeAuthorizationTimeout {
			t.Fatalf("outcome = %+v, want %s", outcome, CodeAuthorizationTimeout)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the authorization timeout")
	}
	if _, ok := r.Pending(); ok {
		t.Fatal("expected no pending request after timeout")
	}
}

func TestMatchesRedirectURI(t *testing.T) {
	cases := []struct {
		registered, callback string
		want                 bool
	}{
		{"my-app:/oauth-callback/", "my-app:/oauth-callback/?code=1", true},
		{"my-app:/oauth-callback/", "MY-APP:/oauth-callback/extra?code=1", true},
		{"http://localhost:8085/callback", "http://LOCALHOST:8085/callback?code=1", true},
		{"http://localhost:8085/callback", "http://localhost:9999/callback?code=1", false},
		{"com.example.app:callback", "com.example.app:callback?code=1", true},
		{"com.example.app:callback", "com.example.app:other?code=1", false},
	}
	for _, tc := range cases {
		registered, _ := url.Parse(tc.registered)
		callback, _ := url.Parse(tc.callback)
		if got := matchesRedirectURI(callback, registered); got != tc.want {
			t.Errorf("matchesRedirectURI(%q, %q) = %v, want %v", tc.callback, tc.registered, got, tc.want)
		}
	}
}
