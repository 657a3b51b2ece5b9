package oauth

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/authcode/internal/browser"
	"github.com/router-for-me/authcode/internal/config"
	"github.com/router-for-me/authcode/internal/logging"
	"github.com/router-for-me/authcode/internal/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// PendingAuthorization is the handle returned by Requester.Begin. Its Done channel
// yields the attempt's single AuthorizationOutcome.
type PendingAuthorization struct {
	request AuthorizationRequest
	done    chan AuthorizationOutcome
	timer   *time.Timer
}

// Request returns the authorization request behind the handle.
func (p *PendingAuthorization) Request() AuthorizationRequest {
	return p.request
}

// URL is the authorization URL handed to the browser.
func (p *PendingAuthorization) URL() string {
	return p.request.URL
}

// Done delivers the outcome once the callback arrives, the attempt is cancelled or it
// times out.
func (p *PendingAuthorization) Done() <-chan AuthorizationOutcome {
	return p.done
}

// Requester builds authorization requests and matches redirect callbacks against the
// single request it allows in flight.
type Requester struct {
	cfg      *config.OAuthConfig
	oauth    *oauth2.Config
	launcher browser.Launcher
	display  Display
	now      func() time.Time
	newState func() (string, error)

	mu      sync.Mutex
	pending *PendingAuthorization
}

// NewRequester creates a Requester for the configured client.
func NewRequester(cfg *config.OAuthConfig, launcher browser.Launcher, display Display) *Requester {
	return &Requester{
		cfg:      cfg,
		oauth:    oauth2Config(cfg),
		launcher: launcher,
		display:  display,
		now:      time.Now,
		newState: GenerateRandomState,
	}
}

func oauth2Config(cfg *config.OAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       strings.Fields(cfg.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizationEndpoint,
			TokenURL:  cfg.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// Begin registers a new authorization request, hands its URL to the launcher and
// returns without waiting for the user.
func (r *Requester) Begin() (*PendingAuthorization, error) {
	req := AuthorizationRequest{
		AttemptID:    logging.NewAttemptID(),
		ClientID:     r.cfg.ClientID,
		RedirectURI:  r.cfg.RedirectURI,
		Scope:        r.cfg.Scope,
		ResponseType: "code",
		CreatedAt:    r.now(),
	}

	var opts []oauth2.AuthCodeOption
	if r.cfg.UseState {
		state, err := r.newState()
		if err != nil {
			return nil, &Failure{Kind: KindValidation, Code: CodeInvalidRequest, Description: "state generation failed", Cause: err}
		}
		req.State = state
	}
	if r.cfg.UsePKCE {
		codes := GeneratePKCECodes()
		req.CodeVerifier = codes.CodeVerifier
		req.CodeChallenge = codes.CodeChallenge
		opts = append(opts, oauth2.S256ChallengeOption(codes.CodeVerifier))
	}
	req.URL = r.oauth.AuthCodeURL(req.State, opts...)

	p := &PendingAuthorization{
		request: req,
		done:    make(chan AuthorizationOutcome, 1),
	}

	r.mu.Lock()
	if r.pending != nil {
		r.mu.Unlock()
		return nil, validationFailure(CodeRequestInProgress, "another authorization request is still pending")
	}
	timeout := r.cfg.AuthorizationTimeout
	if timeout <= 0 {
		timeout = config.DefaultAuthorizationTimeout
	}
	r.pending = p
	p.timer = time.AfterFunc(timeout, func() { r.expire(p) })
	r.mu.Unlock()

	entry := log.WithField(logging.AttemptIDField, req.AttemptID)
	entry.Debugf("authorization request registered: %s", util.MaskURL(req.URL))

	r.report("Opening browser for authentication...")
	if err := r.launcher.Launch(req.URL); err != nil {
		entry.Warnf("browser launch failed: %v", err)
		r.report("Could not open a browser. Open this URL to continue:\n" + req.URL)
	}
	return p, nil
}

// Complete consumes the pending request with the redirect callback URI. The pending
// request is cleared whatever the outcome, so a second callback for the same attempt
// yields no_pending_request.
func (r *Requester) Complete(callbackURI string) AuthorizationOutcome {
	r.mu.Lock()
	p := r.pending
	if p == nil {
		r.mu.Unlock()
		log.Debug("callback received with no pending authorization request")
		return failureOutcome("", validationFailure(CodeNoPendingRequest, "no authorization request is pending"))
	}
	r.pending = nil
	p.timer.Stop()
	r.mu.Unlock()

	outcome := evaluateCallback(&p.request, callbackURI)
	entry := log.WithField(logging.AttemptIDField, p.request.AttemptID)
	if outcome.Succeeded() {
		entry.Debug("authorization code received")
	} else {
		entry.Warnf("authorization failed: %v", outcome.Failure)
	}
	p.done <- outcome
	return outcome
}

// Cancel abandons the pending request. Late callbacks then yield no_pending_request.
// It reports whether a request was pending.
func (r *Requester) Cancel() bool {
	r.mu.Lock()
	p := r.pending
	r.mu.Unlock()
	return r.cancel(p)
}

// cancel abandons p only if it is still the pending request.
func (r *Requester) cancel(p *PendingAuthorization) bool {
	r.mu.Lock()
	if p == nil || r.pending != p {
		r.mu.Unlock()
		return false
	}
	r.pending = nil
	p.timer.Stop()
	r.mu.Unlock()

	log.WithField(logging.AttemptIDField, p.request.AttemptID).Info("authorization cancelled")
	p.done <- AuthorizationOutcome{Kind: OutcomeCancelled, AttemptID: p.request.AttemptID}
	return true
}

// Pending returns a copy of the in-flight request, if any.
func (r *Requester) Pending() (AuthorizationRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return AuthorizationRequest{}, false
	}
	return r.pending.request, true
}

func (r *Requester) expire(p *PendingAuthorization) {
	r.mu.Lock()
	if r.pending != p {
		r.mu.Unlock()
		return
	}
	r.pending = nil
	r.mu.Unlock()

	log.WithField(logging.AttemptIDField, p.request.AttemptID).Warn("authorization request timed out")
	p.done <- failureOutcome(p.request.AttemptID, validationFailure(CodeAuthorizationTimeout, "timed out waiting for the authorization callback"))
}

func (r *Requester) report(message string) {
	if r.display != nil {
		r.display.ReportStatus(message)
	}
}

// evaluateCallback turns a redirect callback URI into the outcome for req.
func evaluateCallback(req *AuthorizationRequest, callbackURI string) AuthorizationOutcome {
	fail := func(f *Failure) AuthorizationOutcome { return failureOutcome(req.AttemptID, f) }

	trimmed := strings.TrimSpace(callbackURI)
	callback, err := url.Parse(trimmed)
	if trimmed == "" || err != nil {
		return fail(validationFailure(CodeInvalidResponse, "callback URI could not be parsed"))
	}
	registered, err := url.Parse(req.RedirectURI)
	if err != nil || !matchesRedirectURI(callback, registered) {
		return fail(validationFailure(CodeInvalidResponse, "callback URI does not match the registered redirect URI"))
	}

	params := callbackParams(callback)
	code := strings.TrimSpace(params.Get("code"))
	state := strings.TrimSpace(params.Get("state"))
	errCode := strings.TrimSpace(params.Get("error"))
	errDesc := strings.TrimSpace(params.Get("error_description"))

	if req.State != "" && state != req.State {
		return fail(validationFailure(CodeStateMismatch, "callback state does not match the pending request"))
	}
	if errCode != "" || errDesc != "" {
		return fail(protocolFailure(errCode, errDesc))
	}
	if code == "" {
		return fail(validationFailure(CodeInvalidResponse, "callback is missing the authorization code"))
	}
	return successOutcome(req, code, state)
}

// callbackParams reads the query string, filling absent keys from the fragment.
func callbackParams(u *url.URL) url.Values {
	params := u.Query()
	if u.Fragment == "" {
		return params
	}
	fragment, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return params
	}
	for _, key := range []string{"code", "state", "error", "error_description"} {
		if params.Get(key) == "" && fragment.Get(key) != "" {
			params.Set(key, fragment.Get(key))
		}
	}
	return params
}

// matchesRedirectURI reports whether callback starts with the registered redirect URI:
// same scheme and host, and a path (or opaque part) prefixed by the registered one.
func matchesRedirectURI(callback, registered *url.URL) bool {
	if registered.Scheme == "" || !strings.EqualFold(callback.Scheme, registered.Scheme) {
		return false
	}
	if !strings.EqualFold(callback.Host, registered.Host) {
		return false
	}
	return strings.HasPrefix(uriPath(callback), uriPath(registered))
}

func uriPath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Path
}
