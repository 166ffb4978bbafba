package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a query or snippet to log
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// OpenAI and Anthropic style secret keys (sk-..., sk-ant-...)
	secretKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`)

	// Authorization headers echoed back in transport errors
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]+`)

	// api_key=..., x-api-key: ...
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|x-api-key)(\s*[=:]\s*)[A-Za-z0-9._-]{12,}`)
)

func redact(s string) string {
	s = secretKeyPattern.ReplaceAllString(s, RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}${2}"+RedactedText)
	return s
}

// SanitizeError removes credentials from an error message before logging.
// Model client errors can echo request headers.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error())
}

// SanitizeQuery truncates a SQL query or code snippet for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return redact(TruncateString(query, MaxQueryLogLength))
}

// TruncateString truncates a string to maxLen bytes and adds an ellipsis if needed.
// The cut never splits a UTF-8 sequence.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
