package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/router-for-me/authcode/internal/oauth"
	"github.com/router-for-me/authcode/internal/util"
)

// Controller is the part of the flow the watch view drives.
type Controller interface {
	Token() (*oauth.TokenState, error)
	RefreshNow(ctx context.Context) (*oauth.TokenState, error)
	RefreshPending() *oauth.RefreshHandle
}

type tickMsg time.Time
type logLineMsg string
type refreshDoneMsg struct{ err error }
type stopMsg struct{}

// Model is the bubbletea model of the watch view: a token summary above a scrolling
// event log.
type Model struct {
	ctx    context.Context
	ctrl   Controller
	events <-chan any
	logs   <-chan string

	viewport   viewport.Model
	lines      []string
	maxLines   int
	width      int
	height     int
	ready      bool
	refreshing bool
	showTokens bool
	now        func() time.Time
}

// NewModel creates the watch view. bridge and hook may be nil.
func NewModel(ctx context.Context, ctrl Controller, bridge *Bridge, hook *LogHook, showTokens bool) Model {
	m := Model{
		ctx:        ctx,
		ctrl:       ctrl,
		maxLines:   1000,
		showTokens: showTokens,
		now:        time.Now,
	}
	if bridge != nil {
		m.events = bridge.ch
	}
	if hook != nil {
		m.logs = hook.Chan()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent, m.waitForLog, m.waitForStop, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) waitForEvent() tea.Msg {
	if m.events == nil {
		return nil
	}
	ev, ok := <-m.events
	if !ok {
		return nil
	}
	return ev
}

func (m Model) waitForLog() tea.Msg {
	if m.logs == nil {
		return nil
	}
	line, ok := <-m.logs
	if !ok {
		return nil
	}
	return logLineMsg(line)
}

func (m Model) waitForStop() tea.Msg {
	<-m.ctx.Done()
	return stopMsg{}
}

func (m Model) refresh() tea.Msg {
	_, err := m.ctrl.RefreshNow(m.ctx)
	return refreshDoneMsg{err: err}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil
	case tickMsg:
		return m, tick()
	case stopMsg:
		return m, tea.Quit
	case statusMsg:
		m.appendLine(renderStatus(string(msg)))
		return m, m.waitForEvent
	case tokensMsg:
		m.appendLine(successStyle.Render("New " + msg.tokenType + " token installed."))
		return m, m.waitForEvent
	case logLineMsg:
		m.appendLine(mutedStyle.Render(string(msg)))
		return m, m.waitForLog
	case refreshDoneMsg:
		m.refreshing = false
		if errors.Is(msg.err, oauth.ErrNoToken) {
			m.appendLine(errorStyle.Render(msg.err.Error()))
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.refreshing {
				return m, nil
			}
			m.refreshing = true
			return m, m.refresh
		case "c":
			m.lines = nil
			m.syncViewport()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) setSize(w, h int) {
	m.width = w
	m.height = h
	logHeight := h - lipgloss.Height(m.renderSummary()) - 2
	if logHeight < 3 {
		logHeight = 3
	}
	if !m.ready {
		m.viewport = viewport.New(w, logHeight)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = logHeight
	}
	m.syncViewport()
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > m.maxLines {
		m.lines = m.lines[len(m.lines)-m.maxLines:]
	}
	m.syncViewport()
}

func (m *Model) syncViewport() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	help := "r refresh now • c clear • ↑/↓ scroll • q quit"
	if m.refreshing {
		help = "refreshing... • " + help
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("authcode"),
		m.renderSummary(),
		m.viewport.View(),
		helpStyle.Render(help),
	)
}

func (m Model) renderSummary() string {
	state, err := m.ctrl.Token()
	if err != nil {
		return panelStyle.Render(mutedStyle.Render("No token yet."))
	}
	now := m.now()

	refresh := "N/A"
	if state.HasRefreshToken() {
		refresh = m.token(state.RefreshToken)
	}
	next := mutedStyle.Render("not scheduled")
	if h := m.ctrl.RefreshPending(); h != nil {
		next = valueStyle.Render("in " + formatRemaining(h.FireAt.Sub(now)))
	}

	rows := []string{
		titleStyle.Render("Current token"),
		row("Token type", valueStyle.Render(state.TokenType)),
		row("Access token", valueStyle.Render(m.token(state.AccessToken))),
		row("Refresh token", valueStyle.Render(refresh)),
		row("Expires", renderExpiry(state.TimeToExpiry(now))),
		row("Next refresh", next),
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) token(token string) string {
	if m.showTokens {
		return token
	}
	return util.HideToken(token)
}

func row(label, value string) string {
	return labelStyle.Render(label+":") + value
}

func renderExpiry(remaining time.Duration) string {
	switch {
	case remaining <= 0:
		return errorStyle.Render("expired")
	case remaining < time.Minute:
		return warningStyle.Render("in " + formatRemaining(remaining))
	default:
		return successStyle.Render("in " + formatRemaining(remaining))
	}
}

func renderStatus(message string) string {
	switch {
	case strings.HasPrefix(message, "OAuth2 Error"):
		return errorStyle.Render(message)
	case strings.HasPrefix(message, "Authentication successful"):
		return successStyle.Render(message)
	default:
		return valueStyle.Render(message)
	}
}

func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, mins, secs)
	}
	return fmt.Sprintf("%dm%02ds", mins, secs)
}
