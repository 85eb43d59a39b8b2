package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secret values in log output.
const RedactedValue = "[REDACTED]"

// secretMarkers flag attribute keys whose values never reach the log stream,
// whether or not the caller remembered to mask them.
var secretMarkers = []string{"token", "secret", "passphrase", "password", "authorization", "dsn", "privatekey"}

// IsSecretKey reports whether values logged under key are scrubbed.
func IsSecretKey(key string) bool {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(key)))
	for _, marker := range secretMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// MaskField logs whether a secret is configured without revealing it. Empty
// values stay empty so "not configured" remains visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, "")
	}
	return slog.String(key, RedactedValue)
}

// redactAttr is applied by the JSON handler to every attribute, including
// those nested in groups.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !IsSecretKey(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
