// Package callguard scores phone-call evidence against a fixed table of
// scam signals. Scoring is deterministic: the same signal list always
// produces the same response.
package callguard

import (
	"strings"

	"guardian/internal/risk"
)

// signalWeights is the canonical weight table for the rule path.
// Signals outside this table contribute zero and emit no reason.
var signalWeights = map[string]int{
	"urgency":                   10,
	"too_good_to_be_true":       15,
	"asks_to_keep_secret":       15,
	"tech_support":              20,
	"caller_id_mismatch":        20,
	"bank_impersonation":        25,
	"government_impersonation":  25,
	"threats_or_arrest":         25,
	"remote_access_request":     30,
	"gift_cards":                30,
	"crypto_payment":            30,
	"verification_code_request": 35,
}

// safeScripts covers the signals with a known de-escalation line. The
// script attached to a response belongs to the primary signal, if any.
var safeScripts = map[string]risk.SafeScript{
	"bank_impersonation": {
		SayThis:        "I will call the bank back using the number on my card.",
		IfTheyPushBack: "I don't share information on inbound calls. I'll reach out directly.",
	},
	"government_impersonation": {
		SayThis:        "I don't handle legal matters over the phone. I will contact the agency directly.",
		IfTheyPushBack: "Please send official mail. I won't continue this call.",
	},
	"tech_support": {
		SayThis:        "I don't grant remote access. I'll contact support using the official site.",
		IfTheyPushBack: "No remote access. I'm ending the call now.",
	},
	"verification_code_request": {
		SayThis:        "I never share verification codes.",
		IfTheyPushBack: "Without that, I can't proceed. Goodbye.",
	},
	"gift_cards": {
		SayThis:        "I don't pay with gift cards.",
		IfTheyPushBack: "That payment method isn't acceptable. I'm ending this call.",
	},
}

func defaultActions() []risk.RecommendedAction {
	return []risk.RecommendedAction{
		{
			ID:     "pause-call",
			Title:  "Pause and verify",
			Detail: "Take a breath, avoid sharing info, and verify the caller independently.",
		},
		{
			ID:     "hang-up",
			Title:  "Hang up if pressured",
			Detail: "If they demand urgency or secrecy, end the call and call back using a trusted number.",
		},
	}
}

// Assess runs the rule-based scorer over the given signal tags.
// Blank and whitespace-only tags are discarded; duplicates each add their
// weight; the primary signal is the last-seen highest-weighted match.
func Assess(signals []string) risk.Response {
	cleaned := make([]string, 0, len(signals))
	for _, s := range signals {
		if strings.TrimSpace(s) == "" {
			continue
		}
		cleaned = append(cleaned, s)
	}

	score := 0
	reasons := make([]string, 0, len(cleaned))
	primary := ""
	primaryWeight := 0
	processed := 0

	for _, signal := range cleaned {
		weight := signalWeights[signal]
		if weight == 0 {
			continue
		}
		score += weight
		processed++
		reasons = append(reasons, "Signal detected: "+strings.ReplaceAll(signal, "_", " "))
		if weight >= primaryWeight {
			primary = signal
			primaryWeight = weight
		}
	}

	var script *risk.SafeScript
	if s, ok := safeScripts[primary]; ok {
		script = &s
	}

	if len(reasons) == 0 {
		reasons = []string{"No high-risk signals detected."}
	}

	metadata := map[string]any{
		"primary_signal":    primaryOrNone(primary),
		"assessment_method": "rule_based",
		"signals_count":     len(cleaned),
		"signals_processed": processed,
	}

	return risk.NewResponse(
		score,
		reasons,
		"Verify the caller using an official phone number before sharing anything.",
		defaultActions(),
		script,
		metadata,
	)
}

func primaryOrNone(signal string) string {
	if signal == "" {
		return "none"
	}
	return signal
}
