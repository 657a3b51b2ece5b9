package wsrelay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/router-for-me/authcode/internal/oauth"
)

// DefaultPath is where the manager accepts websocket upgrades unless configured otherwise.
const DefaultPath = "/events"

// Completer receives callbacks and cancellations relayed by websocket clients.
type Completer interface {
	Complete(callbackURI string) oauth.AuthorizationOutcome
	Cancel() bool
}

// Manager exposes a websocket endpoint that broadcasts flow events to connected
// clients and relays their callback URIs back into the flow. It implements
// oauth.Display.
type Manager struct {
	path      string
	upgrader  websocket.Upgrader
	sessions  map[string]*session
	sessMutex sync.RWMutex

	completer     Completer
	includeTokens bool

	onConnected    func(string)
	onDisconnected func(string, error)

	logDebugf func(string, ...any)
	logInfof  func(string, ...any)
	logWarnf  func(string, ...any)
}

// Options configures a Manager instance.
type Options struct {
	Path string
	// Completer handles callback and cancel messages. Without one those messages are
	// answered with an error.
	Completer Completer
	// IncludeTokens sends raw tokens in token events instead of masked ones.
	IncludeTokens  bool
	OnConnected    func(string)
	OnDisconnected func(string, error)
	LogDebugf      func(string, ...any)
	LogInfof       func(string, ...any)
	LogWarnf       func(string, ...any)
}

// NewManager builds a websocket event manager with the supplied options.
func NewManager(opts Options) *Manager {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	mgr := &Manager{
		path:     path,
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameHostOrigin,
		},
		completer:      opts.Completer,
		includeTokens:  opts.IncludeTokens,
		onConnected:    opts.OnConnected,
		onDisconnected: opts.OnDisconnected,
		logDebugf:      opts.LogDebugf,
		logInfof:       opts.LogInfof,
		logWarnf:       opts.LogWarnf,
	}
	if mgr.logDebugf == nil {
		mgr.logDebugf = func(string, ...any) {}
	}
	if mgr.logInfof == nil {
		mgr.logInfof = func(string, ...any) {}
	}
	if mgr.logWarnf == nil {
		mgr.logWarnf = func(s string, args ...any) { fmt.Printf(s+"\n", args...) }
	}
	return mgr
}

// SetCompleter installs the flow that callback and cancel messages are relayed to.
func (m *Manager) SetCompleter(c Completer) {
	m.sessMutex.Lock()
	m.completer = c
	m.sessMutex.Unlock()
}

func (m *Manager) getCompleter() Completer {
	m.sessMutex.RLock()
	defer m.sessMutex.RUnlock()
	return m.completer
}

// Path returns the HTTP path the manager expects for websocket upgrades.
func (m *Manager) Path() string {
	if m == nil {
		return DefaultPath
	}
	return m.path
}

// Handler exposes an http.Handler that upgrades connections to websocket sessions.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(m.handleWebsocket)
}

// Sessions returns the number of connected clients.
func (m *Manager) Sessions() int {
	m.sessMutex.RLock()
	defer m.sessMutex.RUnlock()
	return len(m.sessions)
}

// Stop gracefully closes all active websocket sessions.
func (m *Manager) Stop(_ context.Context) error {
	m.sessMutex.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*session)
	m.sessMutex.Unlock()

	for _, sess := range sessions {
		if sess != nil {
			sess.cleanup(errors.New("wsrelay: manager stopped"))
		}
	}
	return nil
}

// ReportStatus broadcasts a status event.
func (m *Manager) ReportStatus(message string) {
	m.Broadcast(Message{Type: MessageTypeStatus, Payload: statusPayload(message)})
}

// ReportTokens broadcasts a tokens event. Tokens are masked unless IncludeTokens is set.
func (m *Manager) ReportTokens(accessToken, tokenType, refreshToken string) {
	m.Broadcast(Message{Type: MessageTypeTokens, Payload: tokensPayload(accessToken, tokenType, refreshToken, m.includeTokens)})
}

// Broadcast sends msg to every connected client. Clients that cannot be written to
// are dropped.
func (m *Manager) Broadcast(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	m.sessMutex.RLock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessMutex.RUnlock()

	for _, sess := range sessions {
		if err := sess.send(msg); err != nil {
			m.logDebugf("wsrelay: dropping session %s: %v", sess.id, err)
			sess.cleanup(err)
		}
	}
}

// handleWebsocket upgrades the connection and wires the session into the pool.
func (m *Manager) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	expectedPath := m.Path()
	if expectedPath != "" && r.URL != nil && r.URL.Path != expectedPath {
		http.NotFound(w, r)
		return
	}
	if !strings.EqualFold(r.Method, http.MethodGet) {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logWarnf("wsrelay: upgrade failed: %v", err)
		return
	}
	s := newSession(conn, m, uuid.NewString())
	m.sessMutex.Lock()
	m.sessions[s.id] = s
	m.sessMutex.Unlock()

	m.logInfof("wsrelay: client %s connected", s.id)
	if m.onConnected != nil {
		m.onConnected(s.id)
	}

	go s.run()
}

func (m *Manager) handleSessionClosed(s *session, cause error) {
	if s == nil {
		return
	}
	m.sessMutex.Lock()
	if cur, ok := m.sessions[s.id]; ok && cur == s {
		delete(m.sessions, s.id)
	}
	m.sessMutex.Unlock()
	m.logDebugf("wsrelay: client %s disconnected: %v", s.id, cause)
	if m.onDisconnected != nil {
		m.onDisconnected(s.id, cause)
	}
}

// sameHostOrigin accepts non-browser clients and browser pages served from the same host.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	trimmed := origin
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	return strings.EqualFold(trimmed, r.Host)
}
