package api

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTagPattern     = regexp.MustCompile(`<[^>]*>`)
	controlCharPattern = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// Default bounds for sanitized fields.
const (
	maxTextLength  = 10000
	maxURLLength   = 2048
	maxFieldLength = 256
)

// sanitize strips HTML tags and control characters (newlines and tabs
// survive), trims whitespace and bounds the length.
func sanitize(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	sanitized := strings.TrimSpace(text)
	sanitized = htmlTagPattern.ReplaceAllString(sanitized, "")
	sanitized = controlCharPattern.ReplaceAllString(sanitized, "")
	if maxLength > 0 && len(sanitized) > maxLength {
		// Back off to a rune boundary so truncation never produces
		// invalid UTF-8.
		cut := maxLength
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = sanitized[:cut]
	}
	return sanitized
}
