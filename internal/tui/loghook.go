package tui

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// LogHook is a logrus hook that forwards formatted entries to the watch view so log
// output does not tear the alternate screen.
type LogHook struct {
	ch        chan string
	formatter log.Formatter
	mu        sync.Mutex
	levels    []log.Level
}

// NewLogHook creates a LogHook for entries at or above level, buffering bufSize lines.
func NewLogHook(bufSize int, level log.Level) *LogHook {
	levels := make([]log.Level, 0, len(log.AllLevels))
	for _, l := range log.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}
	return &LogHook{
		ch:        make(chan string, bufSize),
		formatter: &log.TextFormatter{DisableColors: true, FullTimestamp: true},
		levels:    levels,
	}
}

// SetFormatter sets a custom formatter for the hook.
func (h *LogHook) SetFormatter(f log.Formatter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.formatter = f
}

// Levels returns the log levels this hook should fire on.
func (h *LogHook) Levels() []log.Level {
	return h.levels
}

// Fire is called by logrus when a log entry is fired.
func (h *LogHook) Fire(entry *log.Entry) error {
	h.mu.Lock()
	f := h.formatter
	h.mu.Unlock()

	line := fmt.Sprintf("[%s] %s", entry.Level, entry.Message)
	if f != nil {
		if b, err := f.Format(entry); err == nil {
			line = strings.TrimRight(string(b), "\n\r")
		}
	}
	offer(h.ch, line)
	return nil
}

// Chan returns the channel to read log lines from.
func (h *LogHook) Chan() <-chan string {
	return h.ch
}

// offer sends v without blocking, dropping the oldest buffered value when ch is full.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
