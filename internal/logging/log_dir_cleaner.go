package logging

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const logDirCleanerInterval = time.Minute

// logDirCleaner periodically trims a log directory down to a byte budget.
type logDirCleaner struct {
	dir       string
	maxBytes  int64
	protected string
	cancel    context.CancelFunc
	done      chan struct{}
}

// startLogDirCleaner launches a cleaner for dir. It returns nil when the limit is disabled.
func startLogDirCleaner(dir string, maxTotalSizeMB int, protectedPath string) *logDirCleaner {
	if maxTotalSizeMB <= 0 {
		return nil
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &logDirCleaner{
		dir:       filepath.Clean(dir),
		maxBytes:  int64(maxTotalSizeMB) * 1024 * 1024,
		protected: strings.TrimSpace(protectedPath),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

func (c *logDirCleaner) stop() {
	if c == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *logDirCleaner) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(logDirCleanerInterval)
	defer ticker.Stop()

	for {
		deleted, errClean := enforceLogDirSizeLimit(c.dir, c.maxBytes, c.protected)
		if errClean != nil {
			log.WithError(errClean).Warn("logging: failed to enforce log directory size limit")
		} else if deleted > 0 {
			log.Debugf("logging: removed %d old log file(s) to enforce log directory size limit", deleted)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// enforceLogDirSizeLimit deletes the oldest *.log files in logDir, never touching
// protectedPath, until the directory total is at most maxBytes.
func enforceLogDirSizeLimit(logDir string, maxBytes int64, protectedPath string) (int, error) {
	if maxBytes <= 0 {
		return 0, nil
	}
	dir := strings.TrimSpace(logDir)
	if dir == "" {
		return 0, nil
	}
	dir = filepath.Clean(dir)

	entries, errRead := os.ReadDir(dir)
	if errRead != nil {
		if os.IsNotExist(errRead) {
			return 0, nil
		}
		return 0, errRead
	}

	protected := strings.TrimSpace(protectedPath)
	if protected != "" {
		protected = filepath.Clean(protected)
	}

	type logFile struct {
		path    string
		size    int64
		modTime time.Time
	}

	var (
		files []logFile
		total int64
	)
	for _, entry := range entries {
		if entry.IsDir() || !isLogFileName(entry.Name()) {
			continue
		}
		info, errInfo := entry.Info()
		if errInfo != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, logFile{
			path:    filepath.Join(dir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		total += info.Size()
	}
	if total <= maxBytes {
		return 0, nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	deleted := 0
	for _, file := range files {
		if total <= maxBytes {
			break
		}
		if protected != "" && filepath.Clean(file.path) == protected {
			continue
		}
		if errRemove := os.Remove(file.path); errRemove != nil {
			log.WithError(errRemove).Warnf("logging: failed to remove old log file: %s", filepath.Base(file.path))
			continue
		}
		total -= file.size
		deleted++
	}
	return deleted, nil
}

func isLogFileName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return false
	}
	return strings.HasSuffix(lower, ".log") || strings.HasSuffix(lower, ".log.gz")
}
