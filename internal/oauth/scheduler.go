package oauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/router-for-me/authcode/internal/logging"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// minRefreshDelay is the shortest delay armed for a token that has not expired yet.
const minRefreshDelay = time.Second

// RefreshHandle identifies one armed refresh timer.
type RefreshHandle struct {
	id     uint64
	state  *TokenState
	timer  *time.Timer
	FireAt time.Time
}

// State returns the snapshot the timer was armed for.
func (h *RefreshHandle) State() *TokenState {
	return h.state
}

// Scheduler installs token snapshots and refreshes them before they expire. Refresh
// failures are reported and never retried; a new sign-in is required.
type Scheduler struct {
	exchanger *Exchanger
	store     *TokenStore
	display   Display
	lead      time.Duration
	auto      bool
	now       func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	seq     uint64
	current *RefreshHandle
	closed  bool
}

// NewScheduler creates a Scheduler. With auto false it only reports time-to-expiry.
func NewScheduler(exchanger *Exchanger, store *TokenStore, display Display, lead time.Duration, auto bool) *Scheduler {
	if lead < 0 {
		lead = 0
	}
	return &Scheduler{
		exchanger: exchanger,
		store:     store,
		display:   display,
		lead:      lead,
		auto:      auto,
		now:       time.Now,
	}
}

// Install replaces the current snapshot, publishes the tokens and re-arms the timer.
// Any timer armed for the superseded snapshot is cancelled.
func (s *Scheduler) Install(state *TokenState) *RefreshHandle {
	s.store.Swap(state)
	return s.afterInstall(state)
}

func (s *Scheduler) afterInstall(state *TokenState) *RefreshHandle {
	if s.store.Load() != state {
		return nil
	}
	if s.display != nil {
		s.display.ReportTokens(state.AccessToken, state.TokenType, state.RefreshToken)
	}
	return s.Schedule(state)
}

// Schedule arms a one-shot timer firing lead before state expires. It returns nil when
// nothing was armed: no refresh token, auto refresh disabled, the scheduler is stopped,
// or state is no longer the current snapshot.
func (s *Scheduler) Schedule(state *TokenState) *RefreshHandle {
	if state == nil {
		return nil
	}

	s.mu.Lock()
	if s.store.Load() != state {
		s.mu.Unlock()
		return nil
	}
	s.cancelLocked()

	now := s.now()
	remaining := state.TimeToExpiry(now)
	var h *RefreshHandle
	if state.HasRefreshToken() && s.auto && !s.closed {
		delay := refreshDelay(state, remaining, s.lead)
		s.seq++
		h = &RefreshHandle{id: s.seq, state: state, FireAt: now.Add(delay)}
		h.timer = time.AfterFunc(delay, func() { s.fire(h) })
		s.current = h
	}
	s.mu.Unlock()

	message := fmt.Sprintf("Token will expire in %.1f minutes.", remaining.Minutes())
	if state.HasRefreshToken() {
		message += " Refresh token available."
	}
	s.report(message)
	if h != nil {
		log.WithField("refresh_in", time.Until(h.FireAt).Truncate(time.Second)).Debug("refresh timer armed")
	}
	return h
}

// refreshDelay is remaining minus the lead, where the lead never exceeds half the
// token's lifetime. Tokens living shorter than the configured lead are refreshed at
// half-life instead of immediately, and an unexpired token waits at least
// minRefreshDelay.
func refreshDelay(state *TokenState, remaining, lead time.Duration) time.Duration {
	if remaining <= 0 {
		return 0
	}
	lifetime := remaining
	if !state.ObtainedAt.IsZero() {
		if l := state.Expiry.Sub(state.ObtainedAt); l > 0 {
			lifetime = l
		}
	}
	lead = min(lead, lifetime/2)
	delay := remaining - lead
	return max(delay, min(remaining, minRefreshDelay))
}

// Cancel stops h if it is still the armed timer.
func (s *Scheduler) Cancel(h *RefreshHandle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == h {
		s.cancelLocked()
	}
}

// Pending returns the armed timer, if any.
func (s *Scheduler) Pending() *RefreshHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Stop cancels the armed timer and refuses to arm new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	if s.current == nil {
		return
	}
	s.current.timer.Stop()
	s.current = nil
}

func (s *Scheduler) fire(h *RefreshHandle) {
	s.mu.Lock()
	if s.current != h || s.closed {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.mu.Unlock()

	if s.store.Load() != h.state {
		return
	}
	ctx := logging.WithAttemptID(context.Background(), logging.NewAttemptID())
	_, _ = s.refresh(ctx, h.state)
}

// Refresh redeems the current refresh token. Concurrent calls share one token request.
// A result that lost the race against a newer snapshot is discarded and the newer
// snapshot is returned instead.
func (s *Scheduler) Refresh(ctx context.Context) (*TokenState, error) {
	return s.refresh(ctx, s.store.Load())
}

// refresh redeems old's refresh token and installs the result only if old is still
// the current snapshot.
func (s *Scheduler) refresh(ctx context.Context, old *TokenState) (*TokenState, error) {
	v, err, _ := s.group.Do(fmt.Sprintf("refresh-%p", old), func() (any, error) {
		if s.store.Load() != old && old != nil {
			logging.Entry(ctx).Debug("refresh skipped: snapshot already superseded")
			return s.store.Load(), nil
		}
		if !old.HasRefreshToken() {
			f := validationFailure(CodeInvalidRequest, "no refresh token available; sign in again")
			s.report(f.Message())
			return nil, f
		}

		s.report("Refreshing access token...")
		next, errRefresh := s.exchanger.Refresh(ctx, old.RefreshToken)
		if errRefresh != nil {
			f := AsFailure(errRefresh)
			logging.Entry(ctx).WithField("error", f.Code).Warn("token refresh failed")
			s.report(f.Message() + "\nSign in again to continue.")
			return nil, f
		}

		if !s.store.CompareAndSwap(old, next) {
			logging.Entry(ctx).Debug("refreshed token superseded by a newer sign-in; discarding")
			return s.store.Load(), nil
		}
		logging.Entry(ctx).Info("access token refreshed")
		s.afterInstall(next)
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	state, _ := v.(*TokenState)
	return state, nil
}

func (s *Scheduler) report(message string) {
	if s.display != nil {
		s.display.ReportStatus(message)
	}
}
