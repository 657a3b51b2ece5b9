package oauth

import (
	"context"
	"net/http"
	"time"

	"github.com/router-for-me/authcode/internal/browser"
	"github.com/router-for-me/authcode/internal/config"
	"github.com/router-for-me/authcode/internal/logging"
	"golang.org/x/oauth2"
)

// expiryDelta is how early TokenSource treats a token as expired.
const expiryDelta = 10 * time.Second

// Options configures the collaborators of a Flow. Zero values get defaults.
type Options struct {
	// HTTPClient is used for token endpoint calls.
	HTTPClient *http.Client
	// Launcher opens authorization URLs. Defaults to the system browser with a printed
	// fallback.
	Launcher browser.Launcher
	// Display receives progress and tokens.
	Display Display
}

// Flow wires the requester, exchanger and scheduler around one token store.
type Flow struct {
	cfg       *config.OAuthConfig
	display   Display
	store     *TokenStore
	requester *Requester
	exchanger *Exchanger
	scheduler *Scheduler
}

// NewFlow creates a Flow for the configured client.
func NewFlow(cfg *config.OAuthConfig, opts Options) *Flow {
	display := opts.Display
	if display == nil {
		display = nopDisplay{}
	}
	launcher := opts.Launcher
	if launcher == nil {
		launcher = browser.New(false)
	}

	store := &TokenStore{}
	exchanger := NewExchanger(cfg, opts.HTTPClient)
	return &Flow{
		cfg:       cfg,
		display:   display,
		store:     store,
		requester: NewRequester(cfg, launcher, display),
		exchanger: exchanger,
		scheduler: NewScheduler(exchanger, store, display, cfg.RefreshLead, cfg.AutoRefresh),
	}
}

// Begin starts an authorization attempt without waiting for the callback.
func (f *Flow) Begin() (*PendingAuthorization, error) {
	return f.requester.Begin()
}

// Complete delivers a redirect callback URI to the pending attempt.
func (f *Flow) Complete(callbackURI string) AuthorizationOutcome {
	return f.requester.Complete(callbackURI)
}

// Cancel abandons the pending attempt, if any.
func (f *Flow) Cancel() bool {
	return f.requester.Cancel()
}

// Pending returns the in-flight authorization request, if any.
func (f *Flow) Pending() (AuthorizationRequest, bool) {
	return f.requester.Pending()
}

// SignIn runs a whole attempt: it opens the authorization URL, waits for the callback
// and exchanges the code. Cancelling ctx abandons the attempt.
func (f *Flow) SignIn(ctx context.Context) (*TokenState, error) {
	p, err := f.Begin()
	if err != nil {
		f.display.ReportStatus(AsFailure(err).Message())
		return nil, err
	}
	return f.Await(ctx, p)
}

// Await waits for p's outcome and, on success, exchanges the code and installs the
// resulting tokens.
func (f *Flow) Await(ctx context.Context, p *PendingAuthorization) (*TokenState, error) {
	ctx = logging.WithAttemptID(ctx, p.Request().AttemptID)

	var outcome AuthorizationOutcome
	select {
	case outcome = <-p.Done():
	case <-ctx.Done():
		f.requester.cancel(p)
		outcome = <-p.Done()
		if outcome.Kind == OutcomeCancelled {
			f.display.ReportStatus("Authentication cancelled.")
			return nil, ctx.Err()
		}
	}

	switch outcome.Kind {
	case OutcomeSuccess:
	case OutcomeCancelled:
		f.display.ReportStatus("Authentication cancelled.")
		return nil, outcome.Err()
	default:
		err := outcome.Err()
		f.display.ReportStatus(AsFailure(err).Message())
		return nil, err
	}
	return f.Exchange(ctx, outcome)
}

// Exchange redeems a successful outcome and installs the tokens.
func (f *Flow) Exchange(ctx context.Context, outcome AuthorizationOutcome) (*TokenState, error) {
	f.display.ReportStatus("Authorization code received. Exchanging for tokens...")
	state, err := f.exchanger.ExchangeCode(ctx, outcome)
	if err != nil {
		f.display.ReportStatus(AsFailure(err).Message())
		return nil, err
	}
	logging.Entry(ctx).WithField("expires_in", state.TimeToExpiry(state.ObtainedAt)).Info("tokens received")
	f.display.ReportStatus("Authentication successful! Tokens received.")
	f.scheduler.Install(state)
	return state, nil
}

// Token returns the current snapshot.
func (f *Flow) Token() (*TokenState, error) {
	state := f.store.Load()
	if state == nil {
		return nil, ErrNoToken
	}
	return state, nil
}

// RefreshNow refreshes immediately, sharing any refresh already in flight.
func (f *Flow) RefreshNow(ctx context.Context) (*TokenState, error) {
	if f.store.Load() == nil {
		return nil, ErrNoToken
	}
	return f.scheduler.Refresh(ctx)
}

// RefreshPending returns the armed refresh timer, if any.
func (f *Flow) RefreshPending() *RefreshHandle {
	return f.scheduler.Pending()
}

// TokenSource exposes the current snapshot to golang.org/x/oauth2. Expired tokens are
// refreshed on demand when a refresh token is available.
func (f *Flow) TokenSource() oauth2.TokenSource {
	return flowTokenSource{flow: f}
}

// Client returns an HTTP client that authorizes requests with the current access token.
func (f *Flow) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, f.TokenSource())
}

// Close stops the refresh timer and abandons any pending attempt.
func (f *Flow) Close() {
	f.scheduler.Stop()
	f.requester.Cancel()
}

type flowTokenSource struct {
	flow *Flow
}

func (s flowTokenSource) Token() (*oauth2.Token, error) {
	state, err := s.flow.Token()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if state.Valid(now.Add(expiryDelta)) {
		return state.OAuth2Token(), nil
	}
	if !state.HasRefreshToken() {
		if state.Valid(now) {
			return state.OAuth2Token(), nil
		}
		return nil, ErrTokenExpired
	}
	ctx := logging.WithAttemptID(context.Background(), logging.NewAttemptID())
	refreshed, err := s.flow.RefreshNow(ctx)
	if err != nil {
		return nil, err
	}
	return refreshed.OAuth2Token(), nil
}

type nopDisplay struct{}

func (nopDisplay) ReportStatus(string)                 {}
func (nopDisplay) ReportTokens(string, string, string) {}
