package callguard

import (
	"reflect"
	"testing"

	"guardian/internal/risk"
)

func TestAssess_HighRiskCombination(t *testing.T) {
	resp := Assess([]string{"verification_code_request", "remote_access_request", "bank_impersonation"})

	if resp.Score != 90 {
		t.Errorf("expected score 90, got %d", resp.Score)
	}
	if resp.Level != risk.LevelHigh {
		t.Errorf("expected high level, got %s", resp.Level)
	}
	if got := resp.Metadata["primary_signal"]; got != "verification_code_request" {
		t.Errorf("expected primary verification_code_request, got %v", got)
	}
	if resp.SafeScript == nil {
		t.Fatal("expected a safe script for the primary signal")
	}
	if resp.SafeScript.SayThis != "I never share verification codes." {
		t.Errorf("unexpected script: %q", resp.SafeScript.SayThis)
	}
}

func TestAssess_NoSignals(t *testing.T) {
	resp := Assess(nil)

	if resp.Score != 0 {
		t.Errorf("expected score 0, got %d", resp.Score)
	}
	if resp.Level != risk.LevelLow {
		t.Errorf("expected low level, got %s", resp.Level)
	}
	if len(resp.Reasons) != 1 || resp.Reasons[0] != "No high-risk signals detected." {
		t.Errorf("expected neutral sentinel reason, got %v", resp.Reasons)
	}
	if got := resp.Metadata["primary_signal"]; got != "none" {
		t.Errorf("expected primary none, got %v", got)
	}
	if resp.SafeScript != nil {
		t.Error("expected no safe script without a primary signal")
	}
}

func TestAssess_UnknownSignalsAreNeutral(t *testing.T) {
	base := Assess([]string{"urgency"})
	withUnknown := Assess([]string{"urgency", "grandparent_scam"})

	if base.Score != withUnknown.Score {
		t.Errorf("unknown signal changed score: %d vs %d", base.Score, withUnknown.Score)
	}
	if got := withUnknown.Metadata["signals_count"]; got != 2 {
		t.Errorf("expected signals_count 2, got %v", got)
	}
	if got := withUnknown.Metadata["signals_processed"]; got != 1 {
		t.Errorf("expected signals_processed 1, got %v", got)
	}
}

func TestAssess_BlankSignalsDiscarded(t *testing.T) {
	resp := Assess([]string{"", "  ", "urgency", "\t"})

	if resp.Score != 10 {
		t.Errorf("expected score 10, got %d", resp.Score)
	}
	if got := resp.Metadata["signals_count"]; got != 1 {
		t.Errorf("expected signals_count 1 after cleaning, got %v", got)
	}
}

func TestAssess_DuplicatesAccumulate(t *testing.T) {
	resp := Assess([]string{"urgency", "urgency", "urgency"})
	if resp.Score != 30 {
		t.Errorf("expected score 30, got %d", resp.Score)
	}
	if len(resp.Reasons) != 3 {
		t.Errorf("expected 3 reasons, got %d", len(resp.Reasons))
	}
}

func TestAssess_PrimaryTieGoesToLastSeen(t *testing.T) {
	resp := Assess([]string{"bank_impersonation", "government_impersonation"})
	if got := resp.Metadata["primary_signal"]; got != "government_impersonation" {
		t.Errorf("expected last-seen tie winner, got %v", got)
	}
	if resp.SafeScript == nil || resp.SafeScript.SayThis != safeScripts["government_impersonation"].SayThis {
		t.Error("script should follow the primary signal")
	}
}

func TestAssess_Deterministic(t *testing.T) {
	signals := []string{"tech_support", "gift_cards", "urgency"}
	first := Assess(signals)
	second := Assess(signals)
	if !reflect.DeepEqual(first, second) {
		t.Error("same input produced different responses")
	}
}

func TestAssess_ScoreMonotonic(t *testing.T) {
	prev := 0
	signals := []string{}
	for _, s := range []string{"urgency", "tech_support", "bank_impersonation", "gift_cards"} {
		signals = append(signals, s)
		score := Assess(signals).Score
		if score < prev {
			t.Fatalf("adding %q lowered the score from %d to %d", s, prev, score)
		}
		prev = score
	}
}

func TestAssess_ScoreClampedAt100(t *testing.T) {
	resp := Assess([]string{
		"verification_code_request", "gift_cards", "remote_access_request", "crypto_payment",
	})
	if resp.Score != 100 {
		t.Errorf("expected clamped score 100, got %d", resp.Score)
	}
}

func TestAssess_ReasonsUseSpaces(t *testing.T) {
	resp := Assess([]string{"caller_id_mismatch"})
	if resp.Reasons[0] != "Signal detected: caller id mismatch" {
		t.Errorf("unexpected reason: %q", resp.Reasons[0])
	}
}
