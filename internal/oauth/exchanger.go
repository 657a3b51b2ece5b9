package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/router-for-me/authcode/internal/config"
	"github.com/router-for-me/authcode/internal/logging"
	"github.com/tidwall/gjson"
)

// maxLoggedBody bounds how much of an unexpected response body ends up in a description.
const maxLoggedBody = 256

// Exchanger talks to the token endpoint: it redeems authorization codes and refresh
// tokens. Every error it returns is a *Failure.
type Exchanger struct {
	cfg        *config.OAuthConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewExchanger creates an Exchanger. A nil httpClient gets a client bounded by the
// configured request timeout.
func NewExchanger(cfg *config.OAuthConfig, httpClient *http.Client) *Exchanger {
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = config.DefaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Exchanger{cfg: cfg, httpClient: httpClient, now: time.Now}
}

// ExchangeCode redeems the authorization code carried by a successful outcome.
func (e *Exchanger) ExchangeCode(ctx context.Context, outcome AuthorizationOutcome) (*TokenState, error) {
	if !outcome.Succeeded() || outcome.Code == "" {
		return nil, validationFailure(CodeInvalidRequest, "code exchange requires a successful authorization outcome")
	}
	if outcome.AttemptID != "" && logging.GetAttemptID(ctx) == "" {
		ctx = logging.WithAttemptID(ctx, outcome.AttemptID)
	}

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {outcome.Code},
		"redirect_uri": {e.cfg.RedirectURI},
	}
	if outcome.CodeVerifier != "" {
		form.Set("code_verifier", outcome.CodeVerifier)
	}
	resp, err := e.post(ctx, form)
	if err != nil {
		return nil, err
	}
	return newTokenState(*resp, "", e.now()), nil
}

// Refresh redeems a refresh token. When the server does not rotate the refresh token the
// previous one is kept.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*TokenState, error) {
	if refreshToken == "" {
		return nil, validationFailure(CodeInvalidRequest, "refresh token is required")
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	resp, err := e.post(ctx, form)
	if err != nil {
		return nil, err
	}
	return newTokenState(*resp, refreshToken, e.now()), nil
}

func (e *Exchanger) post(ctx context.Context, form url.Values) (*TokenResponse, error) {
	entry := logging.Entry(ctx).WithField("grant_type", form.Get("grant_type"))

	if e.cfg.IsPublicClient() {
		form.Set("client_id", e.cfg.ClientID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Failure{Kind: KindValidation, Code: CodeInvalidRequest, Description: "failed to create token request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	if !e.cfg.IsPublicClient() {
		req.SetBasicAuth(e.cfg.ClientID, e.cfg.ClientSecret)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		entry.Warnf("token request failed: %v", err)
		return nil, transportFailure(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		entry.Warnf("failed to read token response: %v", err)
		return nil, transportFailure(err)
	}
	entry.WithField("status", resp.StatusCode).Debugf("token endpoint answered in %v", time.Since(start).Truncate(time.Millisecond))

	tokenResp, failure := parseTokenResponse(resp.StatusCode, body)
	if failure != nil {
		entry.WithField("error", failure.Code).Warnf("token request rejected: %s", failure.Description)
		return nil, failure
	}
	return tokenResp, nil
}

// parseTokenResponse applies the token endpoint contract: an error field wins whatever
// the status, otherwise a 2xx JSON object with an access_token is required.
func parseTokenResponse(status int, body []byte) (*TokenResponse, *Failure) {
	success := status >= 200 && status < 300

	if !gjson.ValidBytes(body) {
		if success {
			return nil, validationFailure(CodeInvalidResponse, "token endpoint returned a body that is not JSON")
		}
		return nil, validationFailure(CodeInvalidResponse, fmt.Sprintf("token endpoint returned HTTP %d: %s", status, truncate(body)))
	}

	root := gjson.ParseBytes(body)
	if errField := root.Get("error"); errField.Exists() && errField.Type != gjson.Null && errField.String() != "" {
		return nil, protocolFailure(errField.String(), root.Get("error_description").String())
	}
	if !success {
		return nil, validationFailure(CodeInvalidResponse, fmt.Sprintf("token endpoint returned HTTP %d: %s", status, truncate(body)))
	}
	if !root.IsObject() {
		return nil, validationFailure(CodeInvalidResponse, "token endpoint returned a JSON value that is not an object")
	}

	resp := &TokenResponse{
		AccessToken:  root.Get("access_token").String(),
		TokenType:    root.Get("token_type").String(),
		RefreshToken: root.Get("refresh_token").String(),
		ExpiresIn:    root.Get("expires_in").Int(),
		Scope:        root.Get("scope").String(),
	}
	if resp.AccessToken == "" {
		return nil, validationFailure(CodeInvalidResponse, "token response is missing access_token")
	}
	return resp, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}
