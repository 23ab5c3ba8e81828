package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces sensitive attribute values.
const RedactedValue = "[REDACTED]"

// Key fragments that mark an attribute as carrying credentials. Matching is
// case-insensitive on substrings, so "jwt_secret" and "Authorization" both hit.
var sensitiveFragments = []string{
	"secret",
	"token",
	"password",
	"passphrase",
	"authorization",
	"private_key",
}

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	lowered := strings.ToLower(strings.TrimSpace(key))
	if lowered == "" {
		return false
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}
	return false
}

// MaskField builds a string attribute, masking the value when the key is
// sensitive. Empty values are left as-is so missing configuration stays visible.
func MaskField(key, value string) slog.Attr {
	if IsSensitive(key) && strings.TrimSpace(value) != "" {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, value)
}

// DSN strips the password from a database URL before it is logged.
func DSN(key, dsn string) slog.Attr {
	parsed, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil || parsed.User == nil {
		return slog.String(key, dsn)
	}
	if _, hasPassword := parsed.User.Password(); hasPassword {
		parsed.User = url.UserPassword(parsed.User.Username(), RedactedValue)
	}
	return slog.String(key, parsed.String())
}

// redactAttr runs inside the handler so callers that forget MaskField still
// never print a credential.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
