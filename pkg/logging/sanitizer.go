// Package logging keeps secrets and oversized payloads out of log lines.
package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxQueryLogLength is the maximum length of SQL to log
	MaxQueryLogLength = 100
	// MaxPromptLogLength is the maximum length of a prompt or model reply to log
	MaxPromptLogLength = 300
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens as sent to OpenAI-compatible endpoints
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_.]+`)

	// key=value style API keys
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9\-_]{20,}`)

	// Dune's key header echoed into an error or dump
	duneHeaderPattern = regexp.MustCompile(`(?i)(x-dune-api-key:?\s*)[A-Za-z0-9\-_]+`)

	// Provider secret keys: sk-ant-..., sk-proj-..., sk-...
	secretKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9\-_]{16,}`)

	// user:pass@host connection strings
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might carry credentials,
// such as a provider error echoing request headers.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redactSecrets(err.Error())
}

// SanitizeQuery truncates and sanitizes SQL for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return redactSecrets(TruncateString(query, MaxQueryLogLength))
}

// SanitizePrompt truncates and sanitizes a prompt or model reply for logging.
func SanitizePrompt(text string) string {
	if text == "" {
		return ""
	}
	return redactSecrets(TruncateString(text, MaxPromptLogLength))
}

func redactSecrets(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = duneHeaderPattern.ReplaceAllString(s, "${1}"+RedactedText)
	s = secretKeyPattern.ReplaceAllString(s, RedactedText)
	s = connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
	return s
}

// TruncateString truncates s to at most maxLen bytes without splitting a
// UTF-8 sequence, adding an ellipsis when anything was cut.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
