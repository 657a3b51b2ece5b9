package tui

import "github.com/router-for-me/authcode/internal/oauth"

type statusMsg string

type tokensMsg struct {
	accessToken  string
	tokenType    string
	refreshToken string
}

// Bridge is an oauth.Display that queues flow events for the watch view. Events that
// arrive while the buffer is full replace the oldest one.
type Bridge struct {
	ch chan any
}

// NewBridge creates a Bridge buffering up to bufSize events.
func NewBridge(bufSize int) *Bridge {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bridge{ch: make(chan any, bufSize)}
}

// ReportStatus implements oauth.Display.
func (b *Bridge) ReportStatus(message string) {
	offer[any](b.ch, statusMsg(message))
}

// ReportTokens implements oauth.Display.
func (b *Bridge) ReportTokens(accessToken, tokenType, refreshToken string) {
	offer[any](b.ch, tokensMsg{accessToken: accessToken, tokenType: tokenType, refreshToken: refreshToken})
}

var _ oauth.Display = (*Bridge)(nil)
