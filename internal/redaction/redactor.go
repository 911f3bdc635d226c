// Package redaction scrubs PII from payloads before they reach the
// audit trail. The cipher protects data at rest inside the engine; the
// redactor protects everything that leaves it.
package redaction

import "regexp"

// Redactor scrubs sensitive data from a string.
type Redactor interface {
	Redact(content string) string
}

// Pattern pairs a regex with its replacement marker.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// DefaultPatterns covers the PII classes this service handles: contact
// details, government and card numbers, and credential material.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "email",
			Regex:       regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`),
			Replacement: "[REDACTED_EMAIL]",
		},
		{
			Name:        "ssn",
			Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Replacement: "[REDACTED_SSN]",
		},
		{
			Name:        "credit_card",
			Regex:       regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),
			Replacement: "[REDACTED_CC]",
		},
		{
			Name:        "phone_us",
			Regex:       regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
			Replacement: "[REDACTED_PHONE]",
		},
		{
			Name:        "verification_code",
			Regex:       regexp.MustCompile(`\b\d{6}\b`),
			Replacement: "[REDACTED_CODE]",
		},
		{
			Name:        "password_json",
			Regex:       regexp.MustCompile(`(?i)"(password|passwd|pwd)":\s*"([^"]{4,})"`),
			Replacement: `"$1": "[REDACTED_PASSWORD]"`,
		},
		{
			Name:        "jwt_token",
			Regex:       regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
			Replacement: "[REDACTED_JWT]",
		},
	}
}

// PatternRedactor implements Redactor using regex patterns.
type PatternRedactor struct {
	patterns []Pattern
	enabled  bool
}

// NewPatternRedactor creates a PatternRedactor with the default patterns.
func NewPatternRedactor() *PatternRedactor {
	return &PatternRedactor{
		patterns: DefaultPatterns(),
		enabled:  true,
	}
}

// SetEnabled enables or disables redaction. Not safe to call while
// other goroutines redact.
func (r *PatternRedactor) SetEnabled(enabled bool) {
	r.enabled = enabled
}

// Redact applies every pattern in order.
func (r *PatternRedactor) Redact(content string) string {
	if !r.enabled {
		return content
	}
	result := content
	for _, pattern := range r.patterns {
		result = pattern.Regex.ReplaceAllString(result, pattern.Replacement)
	}
	return result
}

// RedactMap redacts all string values in a payload, recursing into
// nested maps and slices.
func (r *PatternRedactor) RedactMap(data map[string]any) map[string]any {
	if !r.enabled {
		return data
	}
	result := make(map[string]any, len(data))
	for k, v := range data {
		result[k] = r.redactValue(v)
	}
	return result
}

func (r *PatternRedactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]any:
		return r.RedactMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = r.Redact(item)
		}
		return out
	default:
		return v
	}
}
