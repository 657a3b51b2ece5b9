// Package browser hands authorization URLs to an out-of-process user agent.
// It abstracts the underlying operating system commands behind the Launcher interface.
package browser

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// Launcher opens a URL in a user agent. Launch is fire-and-forget: it returns once the
// user agent has been started, not when the user finishes.
type Launcher interface {
	Launch(url string) error
}

// LauncherFunc adapts a plain function to the Launcher interface.
type LauncherFunc func(url string) error

// Launch calls f(url).
func (f LauncherFunc) Launch(url string) error {
	return f(url)
}

// linuxBrowsers are tried in order of preference when open-golang fails.
var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// SystemLauncher opens URLs in the default system browser.
type SystemLauncher struct{}

// Launch opens url in the default web browser.
// It first attempts to use a platform-agnostic library and falls back to
// platform-specific commands if that fails.
func (SystemLauncher) Launch(url string) error {
	err := open.Start(url)
	if err == nil {
		log.Debug("Successfully opened URL using open-golang library")
		return nil
	}

	log.Debugf("open-golang failed: %v, trying platform-specific commands", err)
	return openURLPlatformSpecific(url)
}

// ManualLauncher prints the URL for the user to open by hand.
type ManualLauncher struct {
	Out io.Writer
}

// Launch writes url to the configured writer (stdout by default).
func (m ManualLauncher) Launch(url string) error {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintf(out, "Visit the following URL to continue authentication:\n%s\n", url)
	return err
}

// FallbackLauncher tries Primary and, when it fails, hands the URL to Fallback so the
// user can still continue by hand.
type FallbackLauncher struct {
	Primary  Launcher
	Fallback Launcher
}

// Launch implements Launcher.
func (f FallbackLauncher) Launch(url string) error {
	if f.Primary != nil {
		errPrimary := f.Primary.Launch(url)
		if errPrimary == nil {
			return nil
		}
		log.Warnf("Failed to open browser automatically: %v", errPrimary)
		if f.Fallback == nil {
			return errPrimary
		}
	}
	if f.Fallback == nil {
		return fmt.Errorf("no launcher configured")
	}
	return f.Fallback.Launch(url)
}

// New returns the launcher matching the no-browser setting: a manual printer, or the
// system browser falling back to the printer.
func New(noBrowser bool) Launcher {
	manual := ManualLauncher{}
	if noBrowser || !IsAvailable() {
		return manual
	}
	return FallbackLauncher{Primary: SystemLauncher{}, Fallback: manual}
}

// openURLPlatformSpecific is a helper function that opens a URL using OS-specific commands.
func openURLPlatformSpecific(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux":
		for _, browser := range linuxBrowsers {
			if _, err := exec.LookPath(browser); err == nil {
				cmd = exec.Command(browser, url)
				break
			}
		}
		if cmd == nil {
			return fmt.Errorf("no suitable browser found on Linux system")
		}
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	log.Debugf("Running command: %s %v", cmd.Path, cmd.Args[1:])
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser command: %w", err)
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

// IsAvailable checks if the system has a command available to open a web browser.
func IsAvailable() bool {
	switch runtime.GOOS {
	case "darwin":
		_, err := exec.LookPath("open")
		return err == nil
	case "windows":
		_, err := exec.LookPath("rundll32")
		return err == nil
	case "linux":
		if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
			return false
		}
		for _, browser := range linuxBrowsers {
			if _, err := exec.LookPath(browser); err == nil {
				return true
			}
		}
		return false
	default:
		return false
	}
}
