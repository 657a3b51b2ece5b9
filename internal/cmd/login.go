package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/authcode/internal/browser"
	"github.com/router-for-me/authcode/internal/callback"
	"github.com/router-for-me/authcode/internal/config"
	"github.com/router-for-me/authcode/internal/display"
	"github.com/router-for-me/authcode/internal/logging"
	"github.com/router-for-me/authcode/internal/misc"
	"github.com/router-for-me/authcode/internal/oauth"
	"github.com/router-for-me/authcode/internal/tui"
	"github.com/router-for-me/authcode/internal/util"
	"github.com/router-for-me/authcode/internal/wsrelay"
	log "github.com/sirupsen/logrus"
)

// LoginOptions contains options for the login process.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool

	// Watch keeps the process alive after sign-in so the refresh timer can renew the
	// token until ctx is cancelled.
	Watch bool

	// UI shows the interactive watch view instead of plain console output while
	// watching. Only used with Watch.
	UI bool

	// Prompt allows the caller to provide interactive input when needed. It is used to
	// paste the redirect URL when the redirect URI is not a loopback address.
	Prompt func(prompt string) (string, error)

	// Launcher overrides the browser launcher chosen from NoBrowser.
	Launcher browser.Launcher

	// Out receives console output. Defaults to os.Stdout.
	Out io.Writer
}

// DoLogin runs one sign-in for the configured client and, with Watch set, keeps the
// resulting token fresh until ctx is done.
//
// Parameters:
//   - ctx: Cancelling it abandons the pending authorization and stops refreshing
//   - cfg: The application configuration
//   - options: Login options including browser behavior and prompts
//
// Returns:
//   - *oauth.TokenState: The tokens held when DoLogin returns
//   - error: The sign-in failure, if any
func DoLogin(ctx context.Context, cfg *config.Config, options *LoginOptions) (*oauth.TokenState, error) {
	if options == nil {
		options = &LoginOptions{}
	}
	out := options.Out
	if out == nil {
		out = os.Stdout
	}

	console := display.NewConsole(display.ConsoleOptions{
		Out:             out,
		ShowTokens:      cfg.ShowTokens,
		CopyAccessToken: cfg.CopyAccessToken,
	})
	events := wsrelay.NewManager(wsrelay.Options{
		IncludeTokens:  cfg.ShowTokens,
		OnConnected:    func(id string) { log.Debugf("event client %s connected", id) },
		OnDisconnected: func(id string, cause error) { log.Debugf("event client %s disconnected: %v", id, cause) },
		LogDebugf:      log.Debugf,
		LogInfof:       log.Infof,
		LogWarnf:       log.Warnf,
	})
	defer func() {
		_ = events.Stop(context.Background())
	}()

	launcher := options.Launcher
	if launcher == nil {
		launcher = browser.New(options.NoBrowser || cfg.NoBrowser)
	}
	var bridge *tui.Bridge
	if options.Watch && options.UI {
		bridge = tui.NewBridge(0)
	}
	flow := oauth.NewFlow(&cfg.OAuth, oauth.Options{
		HTTPClient: util.NewHTTPClient(&cfg.SDKConfig, cfg.OAuth.RequestTimeout),
		Launcher:   launcher,
		Display:    display.NewMulti(console, events, bridgeDisplay(bridge)),
	})
	defer flow.Close()
	events.SetCompleter(flow)

	loopback := callback.IsLoopbackRedirect(cfg.OAuth.RedirectURI)
	if loopback {
		srv, err := callback.NewServer(callback.Options{
			RedirectURI: cfg.OAuth.RedirectURI,
			Completer:   flow,
			Events:      events.Handler(),
			EventsPath:  events.Path(),
		})
		if err != nil {
			return nil, err
		}
		if err = srv.Start(); err != nil {
			return nil, err
		}
		defer func() {
			_ = srv.Stop(context.Background())
		}()
		if options.NoBrowser || cfg.NoBrowser {
			util.PrintSSHTunnelInstructions(out, redirectPort(cfg.OAuth.RedirectURI))
		}
	} else if cfg.EventsAddr != "" {
		stop, err := startEventsServer(cfg.EventsAddr, events)
		if err != nil {
			return nil, err
		}
		defer stop()
	}

	pending, err := flow.Begin()
	if err != nil {
		console.ReportStatus(oauth.AsFailure(err).Message())
		return nil, err
	}
	if !loopback {
		promptFn := options.Prompt
		if promptFn == nil {
			promptFn = defaultCallbackPrompt(out)
		}
		go promptForCallback(ctx, flow, promptFn, cfg.OAuth.RedirectURI)
	}

	state, err := flow.Await(ctx, pending)
	if err != nil {
		return nil, err
	}

	if !options.Watch {
		return state, nil
	}
	if !cfg.OAuth.AutoRefresh || !state.HasRefreshToken() {
		log.Info("nothing to watch: the token cannot be refreshed automatically")
		return state, nil
	}
	if bridge != nil {
		console.SetMuted(true)
		err = tui.Run(ctx, flow, bridge, cfg.ShowTokens)
		console.SetMuted(false)
		if err != nil {
			return nil, fmt.Errorf("watch view failed: %w", err)
		}
	} else {
		log.Info("watching token, press Ctrl+C to stop")
		<-ctx.Done()
	}
	if current, errToken := flow.Token(); errToken == nil {
		state = current
	}
	return state, nil
}

// bridgeDisplay keeps a nil *tui.Bridge from becoming a non-nil oauth.Display.
func bridgeDisplay(b *tui.Bridge) oauth.Display {
	if b == nil {
		return nil
	}
	return b
}

// promptForCallback reads pasted redirect URLs until one is delivered to the flow or
// the attempt is no longer pending.
func promptForCallback(ctx context.Context, flow *oauth.Flow, promptFn func(string) (string, error), redirectURI string) {
	for ctx.Err() == nil {
		input, err := promptFn("Paste the redirect URL here (or press Enter to keep waiting): ")
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debugf("callback prompt stopped: %v", err)
			}
			return
		}
		if _, ok := flow.Pending(); !ok {
			return
		}
		callbackURI, err := misc.NormalizeCallbackInput(input, redirectURI)
		if err != nil {
			log.Warnf("ignoring input: %v", err)
			continue
		}
		if callbackURI == "" {
			continue
		}
		log.Debugf("delivering pasted callback %s", util.MaskURL(callbackURI))
		flow.Complete(callbackURI)
		return
	}
}

func defaultCallbackPrompt(out io.Writer) func(string) (string, error) {
	reader := bufio.NewReader(os.Stdin)
	return func(prompt string) (string, error) {
		_, _ = fmt.Fprint(out, prompt)
		value, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(value), nil
	}
}

// startEventsServer serves the websocket event feed on addr and returns its stop func.
func startEventsServer(addr string, events *wsrelay.Manager) (func(), error) {
	engine := gin.New()
	engine.Use(logging.GinLogrusRecovery())
	handler := events.Handler()
	engine.GET(events.Path(), func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("events server cannot listen on %s: %w", addr, err)
	}
	server := &http.Server{Handler: engine, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if errServe := server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			log.Errorf("events server stopped: %v", errServe)
		}
	}()
	log.Infof("event feed available at ws://%s%s", listener.Addr(), events.Path())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}

func redirectPort(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Port() == "" {
		return "80"
	}
	return u.Port()
}
