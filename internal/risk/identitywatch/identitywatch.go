// Package identitywatch scores identity-misuse signals. Input is a
// boolean signal map; each true signal adds its fixed weight.
package identitywatch

import (
	"strings"

	"guardian/internal/risk"
)

// signalWeights in emission order, so reasons are stable across calls.
var signalWeights = []struct {
	key    string
	weight int
}{
	{"password_reset_unknown", 25},
	{"account_opened", 40},
	{"suspicious_inquiry", 40},
	{"reused_passwords", 15},
	{"clicked_suspicious_link", 20},
	{"ssn_requested_unexpectedly", 25},
}

// Assess sums the weights of the set signals. Missing or false keys
// contribute nothing; unknown keys are ignored.
func Assess(signals map[string]bool) risk.Response {
	score := 0
	var reasons []string

	for _, sw := range signalWeights {
		if signals[sw.key] {
			score += sw.weight
			reasons = append(reasons, strings.ReplaceAll(sw.key, "_", " "))
		}
	}

	if len(reasons) == 0 {
		reasons = []string{"No high-risk identity signals selected."}
	}

	actions := []risk.RecommendedAction{
		{
			ID:     "freeze-credit",
			Title:  "Freeze your credit",
			Detail: "Place a free credit freeze with the major bureaus.",
		},
		{
			ID:     "enable-2fa",
			Title:  "Enable 2FA",
			Detail: "Turn on multi-factor authentication for key accounts.",
		},
		{
			ID:     "change-passwords",
			Title:  "Change passwords",
			Detail: "Update passwords on critical accounts and use a manager.",
		},
		{
			ID:     "check-credit",
			Title:  "Check your credit report",
			Detail: "Review recent inquiries and accounts you don't recognize.",
		},
	}

	script := &risk.SafeScript{
		SayThis:        "I'm calling to report potential fraud and request next steps.",
		IfTheyPushBack: "Please note this as suspected identity misuse and escalate if needed.",
	}

	metadata := map[string]any{
		"suggested_freeze_steps": []string{
			"Freeze credit with Equifax, Experian, and TransUnion.",
			"Create a PIN for lifting the freeze later.",
		},
		"suggested_password_steps": []string{
			"Change passwords starting with email and banking.",
			"Enable passkeys or authenticator apps where possible.",
		},
		"monitoring_steps": []string{
			"Set alerts for new credit inquiries.",
			"Review bank statements weekly for unusual activity.",
		},
	}

	return risk.NewResponse(
		score,
		reasons,
		"Start with a credit freeze and password reset if any suspicion remains.",
		actions,
		script,
		metadata,
	)
}
