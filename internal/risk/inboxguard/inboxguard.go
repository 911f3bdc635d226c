// Package inboxguard analyzes message text and URLs for phishing
// indicators. Text detection is case-insensitive substring matching
// against fixed term sets; URL checks are independent 15-point tests.
package inboxguard

import (
	"net/url"
	"regexp"
	"strings"

	"guardian/internal/risk"
)

var urgencyTerms = []string{"immediately", "final notice", "today", "urgent", "asap", "emergency", "act now", "limited time"}

var paymentTerms = []string{"gift card", "wire", "crypto", "payment", "invoice", "western union", "moneygram", "bitcoin", "ethereum"}

var otpTerms = []string{"code", "otp", "verification", "verify", "one-time code", "verification code"}

var impersonationTerms = []string{"irs", "usps", "fedex", "bank", "paypal", "microsoft", "medicare", "social security", "ssa", "treasury", "fbi", "police", "sheriff"}

var urlShorteners = map[string]bool{
	"bit.ly":      true,
	"tinyurl.com": true,
	"t.co":        true,
	"goo.gl":      true,
	"ow.ly":       true,
}

var sensitivePathKeywords = []string{"login", "verify", "secure", "account", "update"}

var (
	urlPattern = regexp.MustCompile(`https?://\S+`)
	ipPattern  = regexp.MustCompile(`\d+\.\d+\.\d+\.\d+`)
)

func extractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// urlFlags applies each independent red-flag test to a single URL.
func urlFlags(rawURL string) []string {
	var flags []string

	parsed, err := url.Parse(rawURL)
	host := ""
	if err == nil {
		host = strings.ToLower(parsed.Hostname())
	}
	if host == "" {
		return []string{"No domain found"}
	}

	if urlShorteners[host] {
		flags = append(flags, "URL shortener used")
	}
	if ipPattern.MatchString(host) {
		flags = append(flags, "IP address used in URL")
	}
	if strings.Count(host, "-") >= 2 {
		flags = append(flags, "Multiple hyphens in domain")
	}
	if strings.Count(host, ".") >= 3 {
		flags = append(flags, "Long subdomain chain")
	}
	lowerURL := strings.ToLower(rawURL)
	for _, keyword := range sensitivePathKeywords {
		if strings.Contains(lowerURL, keyword) {
			flags = append(flags, "Contains sensitive action keywords")
			break
		}
	}
	if strings.Contains(host, "xn--") {
		flags = append(flags, "Punycode domain detected")
	}
	labels := strings.Split(host, ".")
	if tld := labels[len(labels)-1]; len(tld) > 3 {
		flags = append(flags, "Unusual TLD length")
	}
	return flags
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// AnalyzeText scores a free-form message. The channel tag is carried
// through to metadata only.
func AnalyzeText(text, channel string) risk.Response {
	score := 0
	var reasons []string
	lower := strings.ToLower(text)

	if containsAny(lower, urgencyTerms) {
		score += 20
		reasons = append(reasons, "Urgency language detected")
	}
	if containsAny(lower, paymentTerms) {
		score += 20
		reasons = append(reasons, "Payment request detected")
	}
	if containsAny(lower, otpTerms) {
		score += 25
		reasons = append(reasons, "Verification code request detected")
	}
	if strings.Contains(lower, "attachment") {
		score += 10
		reasons = append(reasons, "Attachment mentioned")
	}

	entities := make([]string, 0, 4)
	for _, term := range impersonationTerms {
		if strings.Contains(lower, term) {
			entities = append(entities, term)
		}
	}
	if len(entities) > 0 {
		score += 20
		reasons = append(reasons, "Impersonation terms detected")
	}

	extracted := extractURLs(text)
	suspicious := false
	for _, u := range extracted {
		if len(urlFlags(u)) > 0 {
			suspicious = true
			break
		}
	}
	if suspicious {
		score += 15
		reasons = append(reasons, "Suspicious URLs detected")
	}

	redFlags := make([]string, len(reasons))
	copy(redFlags, reasons)

	if len(reasons) == 0 {
		reasons = []string{"No obvious red flags detected."}
	}

	actions := []risk.RecommendedAction{
		{
			ID:     "dont-click",
			Title:  "Do not click",
			Detail: "Avoid clicking links or opening attachments in the message.",
		},
		{
			ID:     "official-app",
			Title:  "Open the official app/site",
			Detail: "Navigate to the service using a trusted app or bookmarked site.",
		},
		{
			ID:     "report",
			Title:  "Report as junk",
			Detail: "Use your carrier or email provider reporting tools.",
		},
	}

	metadata := map[string]any{
		"extracted_urls":    extracted,
		"detected_entities": entities,
		"red_flags":         redFlags,
		"channel":           channel,
	}

	return risk.NewResponse(
		score,
		reasons,
		"Avoid responding until you verify the sender through official channels.",
		actions,
		nil,
		metadata,
	)
}

// AnalyzeURL scores a single URL: 15 points per positive red-flag test.
func AnalyzeURL(rawURL string) risk.Response {
	flags := urlFlags(rawURL)
	score := 15 * len(flags)
	if len(flags) == 0 {
		flags = []string{"No obvious URL red flags detected."}
		score = 0
	}

	domain := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		domain = strings.ToLower(parsed.Hostname())
	}

	spoof := false
	for _, flag := range flags {
		if strings.Contains(flag, "Punycode") || strings.Contains(flag, "hyphens") {
			spoof = true
			break
		}
	}

	actions := []risk.RecommendedAction{
		{
			ID:     "manual",
			Title:  "Open manually",
			Detail: "Type the known URL into your browser instead of clicking.",
		},
		{
			ID:     "verify-sender",
			Title:  "Verify the sender",
			Detail: "Confirm the message with the organization using an official contact method.",
		},
	}

	metadata := map[string]any{
		"domain":           domain,
		"looks_like_spoof": spoof,
		"url_red_flags":    flags,
	}

	return risk.NewResponse(
		score,
		flags,
		"Avoid clicking. Validate the URL through official channels.",
		actions,
		nil,
		metadata,
	)
}
