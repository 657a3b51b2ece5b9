package util

import (
	"net/url"
	"strings"
)

// sensitiveQueryParams lists callback and token parameters that must never be logged verbatim.
var sensitiveQueryParams = map[string]struct{}{
	"code":          {},
	"state":         {},
	"code_verifier": {},
	"access_token":  {},
	"refresh_token": {},
	"id_token":      {},
	"client_secret": {},
}

// HideToken masks a credential, keeping only a few leading and trailing characters.
func HideToken(token string) string {
	if len(token) > 8 {
		return token[:4] + "..." + token[len(token)-4:]
	} else if len(token) > 4 {
		return token[:2] + "..." + token[len(token)-2:]
	} else if len(token) > 2 {
		return token[:1] + "..." + token[len(token)-1:]
	}
	return token
}

// MaskSensitiveQuery masks the values of OAuth parameters in a raw query string while
// preserving parameter order and every other value.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	changed := false
	for i, part := range parts {
		if part == "" {
			continue
		}
		keyPart := part
		valuePart := ""
		if idx := strings.Index(part, "="); idx >= 0 {
			keyPart = part[:idx]
			valuePart = part[idx+1:]
		}
		decodedKey, err := url.QueryUnescape(keyPart)
		if err != nil {
			decodedKey = keyPart
		}
		if _, ok := sensitiveQueryParams[strings.ToLower(strings.TrimSpace(decodedKey))]; !ok {
			continue
		}
		decodedValue, err := url.QueryUnescape(valuePart)
		if err != nil {
			decodedValue = valuePart
		}
		parts[i] = keyPart + "=" + url.QueryEscape(HideToken(strings.TrimSpace(decodedValue)))
		changed = true
	}
	if !changed {
		return raw
	}
	return strings.Join(parts, "&")
}

// MaskURL masks sensitive query and fragment parameters of a URL for logging.
// Unparseable input is fully masked.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return HideToken(raw)
	}
	u.RawQuery = MaskSensitiveQuery(u.RawQuery)
	if frag := u.EscapedFragment(); frag != "" {
		masked := MaskSensitiveQuery(frag)
		if unescaped, errUnescape := url.PathUnescape(masked); errUnescape == nil {
			u.Fragment = unescaped
			u.RawFragment = masked
		}
	}
	return u.String()
}
