// Package callback runs the loopback HTTP receiver for redirect URIs of the form
// http://localhost:<port>/<path>. Every request to the redirect path is handed to the
// flow as a callback URI, and the browser gets a result page.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/authcode/internal/logging"
	"github.com/router-for-me/authcode/internal/oauth"
	log "github.com/sirupsen/logrus"
)

// ErrNotLoopback is returned for redirect URIs the server cannot receive.
var ErrNotLoopback = errors.New("callback: redirect uri is not an http loopback address")

// Completer consumes redirect callbacks.
type Completer interface {
	Complete(callbackURI string) oauth.AuthorizationOutcome
}

// Options configures a Server.
type Options struct {
	// RedirectURI is the registered redirect URI; its host, port and path are served.
	RedirectURI string
	// Completer receives every callback.
	Completer Completer
	// Events, when set, is mounted at EventsPath for websocket event clients.
	Events     http.Handler
	EventsPath string
}

// Server handles the local HTTP server for OAuth callbacks.
type Server struct {
	// base is the scheme and host of the registered redirect URI
	base string
	// addr is the address the server listens on
	addr string
	// path is the redirect path callbacks arrive on
	path string

	completer Completer
	engine    *gin.Engine

	// mu protects the server state below
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// IsLoopbackRedirect reports whether redirectURI can be received by a Server.
func IsLoopbackRedirect(redirectURI string) bool {
	_, err := parseLoopback(redirectURI)
	return err == nil
}

func parseLoopback(redirectURI string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(redirectURI))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotLoopback, err)
	}
	if !strings.EqualFold(u.Scheme, "http") {
		return nil, ErrNotLoopback
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
	default:
		return nil, ErrNotLoopback
	}
	return u, nil
}

// NewServer creates a callback server for the registered redirect URI.
//
// Parameters:
//   - opts: The redirect URI, the completer and the optional events handler
//
// Returns:
//   - *Server: A server ready to Start
//   - error: ErrNotLoopback when the redirect URI is not an http loopback address
func NewServer(opts Options) (*Server, error) {
	if opts.Completer == nil {
		return nil, errors.New("callback: completer is required")
	}
	u, err := parseLoopback(opts.RedirectURI)
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	s := &Server{
		base:      u.Scheme + "://" + u.Host,
		addr:      net.JoinHostPort(u.Hostname(), port),
		path:      path,
		completer: opts.Completer,
	}

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	engine.SetHTMLTemplate(template.Must(template.New("result").Parse(resultPage)))
	engine.GET(path, s.handleCallback)
	if opts.Events != nil {
		eventsPath := opts.EventsPath
		if eventsPath == "" {
			eventsPath = "/events"
		}
		engine.GET(eventsPath, func(c *gin.Context) {
			logging.SkipGinRequestLogging(c)
			opts.Events.ServeHTTP(c.Writer, c.Request)
		})
	}
	s.engine = engine
	return s, nil
}

// Handler exposes the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins listening on the redirect URI's address.
//
// Returns:
//   - error: An error if the port is in use or the server is already running
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("callback server is already running")
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("callback server cannot listen on %s: %w", s.addr, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	server := s.server
	go func() {
		if errServe := server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			log.Errorf("callback server stopped: %v", errServe)
		}
	}()
	log.Debugf("callback server listening on %s%s", listener.Addr(), s.path)
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	log.Debug("Stopping OAuth callback server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.server = nil
	s.listener = nil
	return err
}

func (s *Server) handleCallback(c *gin.Context) {
	outcome := s.completer.Complete(s.base + c.Request.URL.RequestURI())
	logging.SetGinAttemptID(c, outcome.AttemptID)

	if outcome.Succeeded() {
		c.HTML(http.StatusOK, "result", gin.H{
			"Title":   "Authentication Successful",
			"Heading": "Authentication Successful!",
			"Message": "You have successfully authenticated. You can close this window and return to the terminal.",
			"Success": true,
		})
		return
	}

	status := http.StatusBadRequest
	detail := ""
	if err := outcome.Err(); err != nil {
		f := oauth.AsFailure(err)
		detail = f.Code
		if f.Description != "" {
			detail += ": " + f.Description
		}
		if f.Code == oauth.CodeNoPendingRequest {
			status = http.StatusConflict
		}
	}
	c.HTML(status, "result", gin.H{
		"Title":   "Authentication Failed",
		"Heading": "Authentication Failed",
		"Message": "The sign-in could not be completed. Return to the terminal for details.",
		"Detail":  detail,
		"Success": false,
	})
}
