package util

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// WritablePath returns the cleaned WRITABLE_PATH environment variable when it is set.
// It accepts both uppercase and lowercase variants.
func WritablePath() string {
	for _, key := range []string{"WRITABLE_PATH", "writable_path"} {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return filepath.Clean(trimmed)
			}
		}
	}
	return ""
}

// MaskSecret hides key material, keeping only the last four characters.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// sensitiveQueryParams are masked in full; other names are masked when they
// mention a credential.
var sensitiveQueryParams = map[string]struct{}{
	"key":      {},
	"sign":     {},
	"password": {},
	"code":     {},
}

var sensitiveQueryFragments = []string{"token", "secret", "private", "api_key", "apikey", "api-key"}

// MaskSensitiveQuery masks credential-like query parameters such as key or sign.
// Unparseable queries are returned unchanged.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	changed := false
	for name, list := range values {
		if !isSensitiveQueryParam(name) {
			continue
		}
		for i := range list {
			list[i] = MaskSecret(list[i])
		}
		changed = true
	}
	if !changed {
		return raw
	}
	return values.Encode()
}

func isSensitiveQueryParam(name string) bool {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "[]")
	if _, ok := sensitiveQueryParams[name]; ok {
		return true
	}
	for _, fragment := range sensitiveQueryFragments {
		if strings.Contains(name, fragment) {
			return true
		}
	}
	return false
}
