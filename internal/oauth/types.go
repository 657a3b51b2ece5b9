// Package oauth implements the OAuth2 Authorization Code flow: building the
// authorization request and matching its redirect callback, exchanging the code for
// tokens at the token endpoint, and refreshing tokens before they expire.
//
// The package owns no UI. Progress and tokens are reported to a Display, URLs are
// handed to a browser.Launcher, and redirect callbacks are delivered by whatever host
// mechanism calls Requester.Complete.
package oauth

import (
	"math"
	"time"
)

// DefaultExpiresIn is applied when the token endpoint omits expires_in or returns 0.
const DefaultExpiresIn = 3600 * time.Second

// Display is the surface the flow reports to. Implementations must be safe to call
// from any goroutine.
type Display interface {
	ReportStatus(message string)
	// ReportTokens publishes freshly received tokens. refreshToken is empty when the
	// server issued none.
	ReportTokens(accessToken, tokenType, refreshToken string)
}

// AuthorizationRequest is one sign-in attempt. It lives from Begin until its callback is
// consumed, it is cancelled, or it times out.
type AuthorizationRequest struct {
	AttemptID     string
	ClientID      string
	RedirectURI   string
	Scope         string
	ResponseType  string
	State         string
	CodeVerifier  string
	CodeChallenge string
	URL           string
	CreatedAt     time.Time
}

// OutcomeKind tags an AuthorizationOutcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// AuthorizationOutcome is produced exactly once per AuthorizationRequest.
type AuthorizationOutcome struct {
	Kind OutcomeKind

	// Code and State are set for OutcomeSuccess.
	Code  string
	State string
	// CodeVerifier is the PKCE verifier of the request the callback matched, if any.
	CodeVerifier string
	// AttemptID identifies the request the outcome belongs to.
	AttemptID string

	// Failure is set for OutcomeFailure.
	Failure *Failure
}

// Succeeded reports whether the outcome carries an authorization code.
func (o AuthorizationOutcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// Err returns the outcome as an error, or nil on success.
func (o AuthorizationOutcome) Err() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeCancelled:
		return ErrCancelled
	default:
		if o.Failure == nil {
			return validationFailure(CodeInvalidResponse, "authorization returned no response or failure information")
		}
		return o.Failure
	}
}

// ErrCancelled is returned by AuthorizationOutcome.Err for cancelled attempts.
var ErrCancelled = &Failure{Kind: KindValidation, Code: "cancelled", Description: "authorization was cancelled"}

func successOutcome(req *AuthorizationRequest, code, state string) AuthorizationOutcome {
	return AuthorizationOutcome{
		Kind:         OutcomeSuccess,
		Code:         code,
		State:        state,
		CodeVerifier: req.CodeVerifier,
		AttemptID:    req.AttemptID,
	}
}

func failureOutcome(attemptID string, f *Failure) AuthorizationOutcome {
	return AuthorizationOutcome{Kind: OutcomeFailure, Failure: f, AttemptID: attemptID}
}

// TokenResponse mirrors the token endpoint JSON body.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresIn        int64  `json:"expires_in,omitempty"`
	Scope            string `json:"scope,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// maxExpiresIn is the largest expires_in that fits a time.Duration.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

// lifetime returns expires_in as a duration, defaulting absent or non-positive values
// and saturating values too large for a time.Duration.
func (r TokenResponse) lifetime() time.Duration {
	if r.ExpiresIn <= 0 {
		return DefaultExpiresIn
	}
	if r.ExpiresIn > maxExpiresIn {
		return time.Duration(maxExpiresIn) * time.Second
	}
	return time.Duration(r.ExpiresIn) * time.Second
}
