// Package moneyguard scores payment requests. Rules fire independently
// and in a fixed order; missing fields default to zero contributions.
package moneyguard

import (
	"strings"

	"guardian/internal/risk"
)

var paymentWeights = map[string]int{
	"gift_card": 40,
	"crypto":    35,
	"wire":      25,
}

var impersonationWeights = map[string]int{
	"bank":         15,
	"government":   15,
	"tech_support": 15,
}

// flagRules fire in declaration order so reasons stay stable.
var flagRules = []struct {
	key    string
	weight int
	reason string
}{
	{"asked_for_verification_code", 35, "They asked for a verification code."},
	{"asked_for_remote_access", 30, "They asked for remote access."},
	{"asked_to_keep_secret", 20, "They asked you to keep it secret."},
	{"urgency_present", 15, "They created urgency or pressure."},
}

// Assess applies the deterministic payment rules to a raw payload map.
// Negative or non-numeric amounts score as zero; unknown enum values
// contribute nothing.
func Assess(payload map[string]any) risk.Response {
	score := 0
	var reasons []string

	method := strings.ToLower(asString(payload["payment_method"]))
	if w, ok := paymentWeights[method]; ok {
		score += w
		reasons = append(reasons, "High-risk payment method: "+strings.ReplaceAll(method, "_", " "))
	}

	amount := asAmount(payload["amount"])
	if asBool(payload["did_they_contact_you_first"]) && amount > 500 {
		score += 15
		reasons = append(reasons, "They contacted you first and the amount is large.")
	}

	flags, _ := payload["flags"].(map[string]any)
	for _, rule := range flagRules {
		if asBool(flags[rule.key]) {
			score += rule.weight
			reasons = append(reasons, rule.reason)
		}
	}

	impersonation := "none"
	if flags != nil {
		if v := strings.ToLower(asString(flags["impersonation_type"])); v != "" {
			impersonation = v
		}
	}
	if w, ok := impersonationWeights[impersonation]; ok {
		score += w
		reasons = append(reasons, "Possible "+strings.ReplaceAll(impersonation, "_", " ")+" impersonation.")
	}

	if len(reasons) == 0 {
		reasons = []string{"No high-risk indicators detected."}
	}

	actions := []risk.RecommendedAction{
		{
			ID:     "pause-payment",
			Title:  "Pause payment",
			Detail: "Stop and verify the request using a trusted channel.",
		},
		{
			ID:     "call-bank",
			Title:  "Call your bank",
			Detail: "Use the number on your card to confirm if this request is legitimate.",
		},
		{
			ID:     "no-otp",
			Title:  "Never share verification codes",
			Detail: "Banks and legitimate services will not ask for OTP codes or remote access.",
		},
	}

	script := &risk.SafeScript{
		SayThis:        "I need to verify this request independently before sending any money.",
		IfTheyPushBack: "I won't proceed without verification. I'll follow up after I confirm.",
	}

	metadata := map[string]any{
		"amount":             amount,
		"payment_method":     method,
		"impersonation_type": impersonation,
	}

	return risk.NewResponse(
		score,
		reasons,
		"Verify the recipient using a trusted number or in-person contact.",
		actions,
		script,
		metadata,
	)
}

// SafeSteps returns the fixed reference document of payment checklists
// and delay scripts.
func SafeSteps() map[string][]map[string]string {
	checklist := []map[string]string{
		{
			"id":     "pause",
			"title":  "Pause the payment",
			"detail": "Give yourself time to verify the request.",
		},
		{
			"id":     "verify",
			"title":  "Verify independently",
			"detail": "Use an official number or app to confirm the request.",
		},
		{
			"id":     "invoice",
			"title":  "Ask for documentation",
			"detail": "Request a written invoice and validate the business directly.",
		},
	}
	scripts := []map[string]string{
		{
			"id":     "delay",
			"title":  "Delay script",
			"detail": "I need to verify this request first. I'll follow up shortly.",
		},
		{
			"id":     "no-otp",
			"title":  "No OTP script",
			"detail": "I don't share verification codes with anyone.",
		},
	}
	return map[string][]map[string]string{"checklist": checklist, "scripts": scripts}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asAmount coerces JSON numbers to a non-negative float; anything else
// counts as zero for the large-amount rule.
func asAmount(v any) float64 {
	var amount float64
	switch n := v.(type) {
	case float64:
		amount = n
	case float32:
		amount = float64(n)
	case int:
		amount = float64(n)
	case int64:
		amount = float64(n)
	}
	if amount < 0 {
		return 0
	}
	return amount
}
