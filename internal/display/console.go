// Package display renders flow progress and tokens for a terminal user.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/router-for-me/authcode/internal/util"
	log "github.com/sirupsen/logrus"
)

// notAvailable is shown in place of a refresh token the server did not issue.
const notAvailable = "N/A"

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	// Out defaults to os.Stdout.
	Out io.Writer
	// ShowTokens prints tokens verbatim instead of masked.
	ShowTokens bool
	// CopyAccessToken copies every received access token to the clipboard.
	CopyAccessToken bool
}

// Console writes styled status lines and token summaries to a terminal.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	styles styles

	// muted suppresses terminal output while another view owns the screen.
	muted atomic.Bool

	showTokens      bool
	copyAccessToken bool
	copyToClipboard func(string) error
}

// NewConsole creates a Console.
func NewConsole(opts ConsoleOptions) *Console {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		out:             out,
		styles:          newStyles(lipgloss.NewRenderer(out)),
		showTokens:      opts.ShowTokens,
		copyAccessToken: opts.CopyAccessToken,
		copyToClipboard: clipboard.WriteAll,
	}
}

// SetMuted stops or resumes printing. Clipboard copies continue while muted.
func (c *Console) SetMuted(muted bool) {
	c.muted.Store(muted)
}

// ReportStatus prints one status message.
func (c *Console) ReportStatus(message string) {
	if c.muted.Load() {
		return
	}
	style := c.styles.status
	switch {
	case strings.HasPrefix(message, "OAuth2 Error"):
		style = c.styles.err
	case strings.HasPrefix(message, "Authentication successful"):
		style = c.styles.success
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, style.Render(message))
}

// ReportTokens prints a token summary. refreshToken is empty when none was issued.
func (c *Console) ReportTokens(accessToken, tokenType, refreshToken string) {
	refresh := notAvailable
	if refreshToken != "" {
		refresh = c.token(refreshToken)
	}
	rows := []string{
		c.styles.title.Render("Tokens"),
		c.row("Access token", c.token(accessToken)),
		c.row("Token type", tokenType),
		c.row("Refresh token", refresh),
	}
	if !c.showTokens {
		rows = append(rows, c.styles.muted.Render("Tokens are masked; run with -show-tokens to print them."))
	}

	if !c.muted.Load() {
		c.mu.Lock()
		_, _ = fmt.Fprintln(c.out, c.styles.section.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
		c.mu.Unlock()
	}

	if c.copyAccessToken && accessToken != "" {
		if err := c.copyToClipboard(accessToken); err != nil {
			log.Warnf("failed to copy access token to clipboard: %v", err)
			return
		}
		c.ReportStatus("Access token copied to clipboard.")
	}
}

func (c *Console) row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, c.styles.label.Render(label+":"), c.styles.value.Render(value))
}

func (c *Console) token(token string) string {
	if c.showTokens {
		return token
	}
	return util.HideToken(token)
}
