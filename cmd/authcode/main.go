// Package main provides the entry point for the authcode command. It signs in with an
// OAuth 2.0 authorization code flow, shows the resulting tokens and, in watch mode,
// keeps them fresh with the refresh timer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/router-for-me/authcode/internal/buildinfo"
	"github.com/router-for-me/authcode/internal/cmd"
	"github.com/router-for-me/authcode/internal/config"
	"github.com/router-for-me/authcode/internal/logging"
	"github.com/router-for-me/authcode/internal/misc"
	"github.com/router-for-me/authcode/internal/oauth"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	var configPath string
	var noBrowser bool
	var showTokens bool
	var copyToken bool
	var watch bool
	var tuiMode bool
	var initConfig bool
	var showVersion bool

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically, print the authorization URL")
	flag.BoolVar(&showTokens, "show-tokens", false, "Print tokens unmasked")
	flag.BoolVar(&copyToken, "copy", false, "Copy the access token to the clipboard")
	flag.BoolVar(&watch, "watch", false, "Keep running and refresh the token before it expires")
	flag.BoolVar(&tuiMode, "tui", false, "With -watch, show the terminal watch view")
	flag.BoolVar(&initConfig, "init-config", false, "Write an annotated config template to -config and exit")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("authcode Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	if initConfig {
		if err := misc.WriteConfigTemplate(configPath, false); err != nil {
			log.Fatalf("failed to write config template: %v", err)
		}
		fmt.Printf("Config template written to %s\n", configPath)
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if migrated, errMigrate := config.MigrateLegacyLayout(configPath); errMigrate != nil {
		log.Warnf("failed to migrate config %s: %v", configPath, errMigrate)
	} else if migrated {
		log.Infof("migrated config %s to the current layout", configPath)
	}

	cfg, err := config.LoadConfigOptional(configPath, true)
	if err != nil {
		if cfgErr, ok := errors.AsType[*config.ConfigurationError](err); ok {
			log.Fatal(cfgErr)
		}
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.NoBrowser = cfg.NoBrowser || noBrowser
	cfg.ShowTokens = cfg.ShowTokens || showTokens
	cfg.CopyAccessToken = cfg.CopyAccessToken || copyToken

	logging.SetLogLevel(cfg)
	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	log.Debugf("authcode Version: %s, Commit: %s, BuiltAt: %s", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = cmd.DoLogin(ctx, cfg, &cmd.LoginOptions{NoBrowser: cfg.NoBrowser, Watch: watch, UI: tuiMode})
	if code := exitCode(err); code != 0 {
		stop()
		log.Exit(code)
	}
}

// exitCode maps a DoLogin error to the process exit status. Flow failures were
// already shown to the user and are only logged at debug level.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	}
	if failure, ok := errors.AsType[*oauth.Failure](err); ok {
		log.Debugf("authentication failed: %s", failure.Code)
		return 1
	}
	log.Errorf("authentication failed: %v", err)
	return 1
}
