// Package config provides configuration management for the authcode client.
// It handles loading and parsing YAML configuration files, applying environment
// overrides and validating the OAuth2 client settings before any flow starts.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the configuration file is decoded.
const (
	DefaultAuthorizationTimeout = 10 * time.Minute
	DefaultRequestTimeout       = 30 * time.Second
	DefaultRefreshLead          = 60 * time.Second

	// EnvPrefix prefixes every environment override, e.g. AUTHCODE_CLIENT_SECRET.
	EnvPrefix = "AUTHCODE_"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	SDKConfig `yaml:",inline"`

	// Debug enables debug level logging.
	Debug bool `yaml:"debug" json:"debug" env:"DEBUG"`

	// LoggingToFile switches log output from stdout to a rotating file.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file" env:"LOGGING_TO_FILE"`

	// LogDir is the directory used for rotated log files. Defaults to "logs".
	LogDir string `yaml:"log-dir" json:"log-dir" env:"LOG_DIR"`

	// LogsMaxTotalSizeMB caps the total size of the log directory. <= 0 disables the cleaner.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb" env:"LOGS_MAX_TOTAL_SIZE_MB"`

	// NoBrowser prints the authorization URL instead of opening a browser.
	NoBrowser bool `yaml:"no-browser" json:"no-browser" env:"NO_BROWSER"`

	// ShowTokens prints tokens unmasked on the console.
	ShowTokens bool `yaml:"show-tokens" json:"show-tokens" env:"SHOW_TOKENS"`

	// CopyAccessToken copies every newly received access token to the clipboard.
	CopyAccessToken bool `yaml:"copy-access-token" json:"copy-access-token" env:"COPY_ACCESS_TOKEN"`

	// EventsAddr is the listen address of the status event feed used when the redirect
	// URI is not served by the loopback callback server. Empty disables it.
	EventsAddr string `yaml:"events-addr" json:"events-addr" env:"EVENTS_ADDR"`

	// OAuth holds the client registration and flow settings.
	OAuth OAuthConfig `yaml:"oauth" json:"oauth"`
}

// OAuthConfig is the immutable client registration used by the authorization and
// token components.
type OAuthConfig struct {
	ClientID              string `yaml:"client-id" json:"client-id" env:"CLIENT_ID"`
	ClientSecret          string `yaml:"client-secret" json:"-" env:"CLIENT_SECRET"`
	RedirectURI           string `yaml:"redirect-uri" json:"redirect-uri" env:"REDIRECT_URI"`
	Scope                 string `yaml:"scope" json:"scope" env:"SCOPE"`
	AuthorizationEndpoint string `yaml:"authorization-endpoint" json:"authorization-endpoint" env:"AUTHORIZATION_ENDPOINT"`
	TokenEndpoint         string `yaml:"token-endpoint" json:"token-endpoint" env:"TOKEN_ENDPOINT"`

	// UseState issues a per-request state value and rejects mismatching callbacks.
	UseState bool `yaml:"use-state" json:"use-state" env:"USE_STATE"`
	// UsePKCE sends an S256 code challenge and the matching verifier on exchange.
	UsePKCE bool `yaml:"use-pkce" json:"use-pkce" env:"USE_PKCE"`

	// AuthorizationTimeout bounds how long a pending authorization request stays valid.
	AuthorizationTimeout time.Duration `yaml:"authorization-timeout" json:"authorization-timeout" env:"AUTHORIZATION_TIMEOUT"`
	// RequestTimeout bounds every token endpoint call.
	RequestTimeout time.Duration `yaml:"request-timeout" json:"request-timeout" env:"REQUEST_TIMEOUT"`
	// RefreshLead is how long before expiry the refresh timer fires.
	RefreshLead time.Duration `yaml:"refresh-lead" json:"refresh-lead" env:"REFRESH_LEAD"`
	// AutoRefresh arms the refresh timer; when false only time-to-expiry is reported.
	AutoRefresh bool `yaml:"auto-refresh" json:"auto-refresh" env:"AUTO_REFRESH"`
}

// Default returns a configuration populated with default values.
func Default() *Config {
	return &Config{
		LogDir: "logs",
		OAuth: OAuthConfig{
			UseState:             true,
			UsePKCE:              true,
			AuthorizationTimeout: DefaultAuthorizationTimeout,
			RequestTimeout:       DefaultRequestTimeout,
			RefreshLead:          DefaultRefreshLead,
			AutoRefresh:          true,
		},
	}
}

// LoadConfig reads the YAML configuration file, applies environment overrides and
// validates the result.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional behaves like LoadConfig but tolerates a missing file when optional
// is true, so a configuration supplied purely through the environment still loads.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays AUTHCODE_* environment variables onto cfg. A nil environ reads the
// process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.ProxyURL = strings.TrimSpace(cfg.ProxyURL)
	cfg.EventsAddr = strings.TrimSpace(cfg.EventsAddr)
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = "logs"
	}
	o := &cfg.OAuth
	o.ClientID = strings.TrimSpace(o.ClientID)
	o.RedirectURI = strings.TrimSpace(o.RedirectURI)
	o.Scope = strings.Join(strings.Fields(o.Scope), " ")
	o.AuthorizationEndpoint = strings.TrimSpace(o.AuthorizationEndpoint)
	o.TokenEndpoint = strings.TrimSpace(o.TokenEndpoint)
	if o.AuthorizationTimeout <= 0 {
		o.AuthorizationTimeout = DefaultAuthorizationTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.RefreshLead < 0 {
		o.RefreshLead = 0
	}
}

// Validate checks the settings a flow cannot start without.
func (cfg *Config) Validate() error {
	o := cfg.OAuth
	if o.ClientID == "" {
		return &ConfigurationError{Field: "oauth.client-id", Reason: "is required"}
	}
	if err := validateAbsoluteURL("oauth.authorization-endpoint", o.AuthorizationEndpoint, true); err != nil {
		return err
	}
	if err := validateAbsoluteURL("oauth.token-endpoint", o.TokenEndpoint, true); err != nil {
		return err
	}
	if err := validateAbsoluteURL("oauth.redirect-uri", o.RedirectURI, false); err != nil {
		return err
	}
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil || u.Host == "" {
			return &ConfigurationError{Field: "proxy-url", Reason: "must be a URL such as socks5://host:port"}
		}
		switch u.Scheme {
		case "socks5", "http", "https":
		default:
			return &ConfigurationError{Field: "proxy-url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
		}
	}
	return nil
}

// IsPublicClient reports whether the client authenticates without a secret.
func (o OAuthConfig) IsPublicClient() bool {
	return o.ClientSecret == ""
}

func validateAbsoluteURL(field, raw string, requireHTTP bool) error {
	if raw == "" {
		return &ConfigurationError{Field: field, Reason: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ConfigurationError{Field: field, Reason: "is not a valid URL", Cause: err}
	}
	if u.Scheme == "" {
		return &ConfigurationError{Field: field, Reason: "must be an absolute URL"}
	}
	if requireHTTP {
		if u.Scheme != "http" && u.Scheme != "https" {
			return &ConfigurationError{Field: field, Reason: "must use http or https"}
		}
		if u.Host == "" {
			return &ConfigurationError{Field: field, Reason: "must include a host"}
		}
	}
	return nil
}
