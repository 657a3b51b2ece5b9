package config

// SDKConfig holds the outbound HTTP settings shared by every component that talks to
// the authorization server.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url" env:"PROXY_URL"`
}
