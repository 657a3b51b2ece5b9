package misc

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeCallbackInput turns pasted redirect input into a full callback URI for
// redirectURI. It accepts the complete URI, just its query or fragment ("?code=..",
// "#code=.."), or bare parameters ("code=..&state=..").
// It returns "" when the input is empty.
func NormalizeCallbackInput(input, redirectURI string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(input), `"'`)
	if trimmed == "" {
		return "", nil
	}

	if u, err := url.Parse(trimmed); err == nil && u.Scheme != "" && !strings.Contains(u.Scheme, "=") {
		return trimmed, nil
	}

	base := strings.TrimRight(redirectURI, "?#")
	switch {
	case strings.HasPrefix(trimmed, "?"), strings.HasPrefix(trimmed, "#"):
		return base + trimmed, nil
	case strings.Contains(trimmed, "="):
		return base + "?" + trimmed, nil
	default:
		return "", fmt.Errorf("invalid callback URL")
	}
}
