package security

import (
	"net/url"
	"strings"
)

const redacted = "***REDACTED***"

var (
	// Query parameter and header fragments that carry credentials
	sensitiveFields = []string{
		"secret", "token", "key", "auth", "password", "signature", "mnemonic", "seed",
	}
	sensitiveHeaders = []string{
		"authorization", "x-api-key", "x-webhook-secret", "cookie", "set-cookie",
	}
)

// MaskAPIKey masks a credential showing only the first 4 chars
func MaskAPIKey(key string) string {
	if len(key) < 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-4)
}

// RedactQuery returns the encoded query with credential parameters replaced
func RedactQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	clean := make(url.Values, len(values))
	for k, v := range values {
		if isSensitiveField(k) {
			clean[k] = []string{redacted}
			continue
		}
		clean[k] = v
	}
	return clean.Encode()
}

// RedactHeaders flattens headers for logging with credentials removed
func RedactHeaders(headers map[string][]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if isSensitiveHeader(k) {
			out[k] = redacted
			continue
		}
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func isSensitiveField(field string) bool {
	lower := strings.ToLower(field)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

func isSensitiveHeader(header string) bool {
	lower := strings.ToLower(header)
	for _, sensitive := range sensitiveHeaders {
		if lower == sensitive {
			return true
		}
	}
	return false
}
