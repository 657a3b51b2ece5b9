package tui

import (
	"context"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
)

// Run shows the watch view until the user quits or ctx is done. Log output is routed
// into the view while it runs and restored afterwards.
func Run(ctx context.Context, ctrl Controller, bridge *Bridge, showTokens bool) error {
	logger := log.StandardLogger()
	hook := NewLogHook(500, logger.GetLevel())
	hook.SetFormatter(logger.Formatter)

	hooks := make(log.LevelHooks, len(logger.Hooks))
	for level, hs := range logger.Hooks {
		hooks[level] = append([]log.Hook(nil), hs...)
	}
	prevHooks := logger.ReplaceHooks(hooks)
	logger.AddHook(hook)

	// File output keeps writing; terminal output would tear the alternate screen.
	prevOut := logger.Out
	if prevOut == os.Stdout || prevOut == os.Stderr {
		logger.SetOutput(io.Discard)
	}
	defer func() {
		logger.SetOutput(prevOut)
		logger.ReplaceHooks(prevHooks)
	}()

	p := tea.NewProgram(NewModel(ctx, ctrl, bridge, hook, showTokens), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
