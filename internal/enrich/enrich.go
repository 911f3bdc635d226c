// Package enrich optionally rewrites a rule-based call assessment with
// advice from an OpenAI-compatible chat-completions endpoint. Any
// failure at any stage returns the rule-based result unchanged: the
// scorers stay the source of truth.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"guardian/internal/risk"
)

const (
	// DefaultTimeout for enrichment calls.
	DefaultTimeout = 20 * time.Second

	// maxResponseSize guards against unexpectedly large API responses.
	maxResponseSize = 1 * 1024 * 1024

	maxErrorBodyLen = 500
)

const systemPrompt = "You are a consumer-protection assistant helping someone " +
	"who may be on a scam phone call. Given the detected risk signals, reply " +
	"with one short, plain-language paragraph of advice. Do not change any " +
	"risk assessment. Never ask the user for personal information."

// Config holds the enrichment client settings.
type Config struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Client calls the chat-completions endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates an enrichment client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{cfg: cfg, http: &http.Client{}}, nil
}

// Enrich attaches model-written advice to a rule-based assessment. The
// score, level, reasons and actions are never modified; only an
// "advice" metadata entry is added. On any error the input comes back
// untouched.
func (c *Client) Enrich(ctx context.Context, signals []string, resp risk.Response) risk.Response {
	advice, err := c.advise(ctx, signals, resp)
	if err != nil {
		slog.Warn("enrichment failed, using rule-based result", "error", err)
		return resp
	}

	enriched := resp
	enriched.Metadata = make(map[string]any, len(resp.Metadata)+2)
	for k, v := range resp.Metadata {
		enriched.Metadata[k] = v
	}
	enriched.Metadata["advice"] = advice
	enriched.Metadata["assessment_method"] = "rule_based_enriched"
	return enriched
}

func (c *Client) advise(ctx context.Context, signals []string, resp risk.Response) (string, error) {
	body, err := c.buildRequest(signals, resp)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		errBody := string(respBody)
		if len(errBody) > maxErrorBodyLen {
			errBody = errBody[:maxErrorBodyLen] + "... (truncated)"
		}
		return "", fmt.Errorf("API returned status %d: %s", httpResp.StatusCode, errBody)
	}

	advice := gjson.GetBytes(respBody, "choices.0.message.content").String()
	advice = strings.TrimSpace(advice)
	if advice == "" {
		return "", fmt.Errorf("empty completion")
	}
	return advice, nil
}

func (c *Client) buildRequest(signals []string, resp risk.Response) ([]byte, error) {
	userPrompt := fmt.Sprintf(
		"Detected signals: %s. Risk level: %s (score %d). Reasons: %s.",
		strings.Join(signals, ", "),
		resp.Level,
		resp.Score,
		strings.Join(resp.Reasons, "; "),
	)

	body := "{}"
	var err error
	for _, kv := range []struct {
		path  string
		value any
	}{
		{"model", c.cfg.Model},
		{"max_tokens", 300},
		{"messages.0.role", "system"},
		{"messages.0.content", systemPrompt},
		{"messages.1.role", "user"},
		{"messages.1.content", userPrompt},
	} {
		body, err = sjson.Set(body, kv.path, kv.value)
		if err != nil {
			return nil, err
		}
	}
	return []byte(body), nil
}
