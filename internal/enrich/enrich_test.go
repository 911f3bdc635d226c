package enrich

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"

	"guardian/internal/risk"
)

func ruleResult() risk.Response {
	return risk.NewResponse(65,
		[]string{"Caller asked for a verification code", "High-pressure urgency tactics"},
		"hang_up", nil, nil, map[string]any{"assessment_method": "rule_based"})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{Endpoint: server.URL, APIKey: "test-key", Model: "test-model"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNew_RequiresSettings(t *testing.T) {
	cases := []Config{
		{APIKey: "k", Model: "m"},
		{Endpoint: "http://x", Model: "m"},
		{Endpoint: "http://x", APIKey: "k"},
	}
	for _, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Errorf("config %+v should be rejected", cfg)
		}
	}
}

func TestEnrich_AttachesAdvice(t *testing.T) {
	var gotAuth, gotModel string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotModel = gjson.GetBytes(body, "model").String()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"content":"  Hang up and call your bank directly.  "}}]}`)
	})

	in := ruleResult()
	out := client.Enrich(context.Background(), []string{"verification_code_request", "urgency"}, in)

	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotModel != "test-model" {
		t.Errorf("model = %q", gotModel)
	}
	if out.Metadata["advice"] != "Hang up and call your bank directly." {
		t.Errorf("advice = %v", out.Metadata["advice"])
	}
	if out.Metadata["assessment_method"] != "rule_based_enriched" {
		t.Errorf("assessment_method = %v", out.Metadata["assessment_method"])
	}
	// The rule-based verdict is untouched.
	if out.Score != in.Score || out.Level != in.Level || len(out.Reasons) != len(in.Reasons) {
		t.Error("enrichment must not alter the assessment")
	}
	// The original response's metadata is not mutated.
	if _, ok := in.Metadata["advice"]; ok {
		t.Error("input metadata was mutated")
	}
}

func TestEnrich_APIErrorFallsBack(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	in := ruleResult()
	out := client.Enrich(context.Background(), []string{"urgency"}, in)

	if _, ok := out.Metadata["advice"]; ok {
		t.Error("failed enrichment must not attach advice")
	}
	if out.Score != in.Score {
		t.Error("fallback must return the rule-based result unchanged")
	}
}

func TestEnrich_EmptyCompletionFallsBack(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[{"message":{"content":"   "}}]}`)
	})

	out := client.Enrich(context.Background(), []string{"urgency"}, ruleResult())
	if _, ok := out.Metadata["advice"]; ok {
		t.Error("blank completion must not attach advice")
	}
}

func TestEnrich_UnreachableEndpointFallsBack(t *testing.T) {
	client, err := New(Config{Endpoint: "http://127.0.0.1:1", APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}

	in := ruleResult()
	out := client.Enrich(context.Background(), []string{"urgency"}, in)
	if out.Score != in.Score || out.Metadata["assessment_method"] != "rule_based" {
		t.Error("network failure must return the rule-based result unchanged")
	}
}
