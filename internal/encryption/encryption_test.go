package encryption

import (
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New(Config{Enabled: true, Password: "test-password", Salt: "test-salt"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	plaintext := "user-12345"
	sealed := c.Encrypt(plaintext)
	if sealed == plaintext {
		t.Fatal("expected ciphertext to differ from plaintext")
	}
	if got := c.Decrypt(sealed); got != plaintext {
		t.Errorf("round trip failed: %q", got)
	}
}

func TestCipher_EmptyValuePassesThrough(t *testing.T) {
	c := newTestCipher(t)
	if got := c.Encrypt(""); got != "" {
		t.Errorf("empty value should pass through, got %q", got)
	}
}

func TestCipher_DecryptPlaintextReturnsInput(t *testing.T) {
	c := newTestCipher(t)
	// Data written before encryption was enabled must stay readable.
	if got := c.Decrypt("plain old value"); got != "plain old value" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestCipher_Disabled(t *testing.T) {
	c, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Enabled() {
		t.Error("cipher should be disabled")
	}
	if got := c.Encrypt("secret"); got != "secret" {
		t.Errorf("disabled cipher should pass through, got %q", got)
	}
}

func TestNew_ExplicitKey(t *testing.T) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatal(err)
	}
	c, err := New(Config{Enabled: true, Key: base64.URLEncoding.EncodeToString(raw)})
	if err != nil {
		t.Fatalf("New with valid key: %v", err)
	}
	if got := c.Decrypt(c.Encrypt("value")); got != "value" {
		t.Errorf("round trip failed: %q", got)
	}
}

func TestNew_RejectsBadKey(t *testing.T) {
	if _, err := New(Config{Enabled: true, Key: "not base64!!"}); err == nil {
		t.Error("expected error for malformed key")
	}
	short := base64.URLEncoding.EncodeToString([]byte("too short"))
	if _, err := New(Config{Enabled: true, Key: short}); err == nil {
		t.Error("expected error for short key")
	}
}

func TestEncryptPayload_SensitiveFieldsOnly(t *testing.T) {
	c := newTestCipher(t)

	payload := map[string]any{
		"phone_number": "555-0100",
		"signal_key":   "urgency",
		"amount":       42.0,
		"emails":       []string{"a@example.com", "b@example.com"},
	}
	sealed := c.EncryptPayload(payload)

	if sealed["phone_number"] == "555-0100" {
		t.Error("phone_number should be encrypted")
	}
	if sealed["signal_key"] != "urgency" {
		t.Error("non-sensitive field should pass through")
	}
	if sealed["amount"] != 42.0 {
		t.Error("non-string value should pass through")
	}
	emails, ok := sealed["emails"].([]string)
	if !ok || emails[0] == "a@example.com" {
		t.Error("sensitive string slice should be encrypted element-wise")
	}

	opened := c.DecryptPayload(sealed)
	if opened["phone_number"] != "555-0100" {
		t.Error("decrypt should restore phone_number")
	}
	restored, _ := opened["emails"].([]string)
	if len(restored) != 2 || restored[1] != "b@example.com" {
		t.Errorf("decrypt should restore emails, got %v", opened["emails"])
	}
}

func TestEncryptPayload_MixedSlice(t *testing.T) {
	c := newTestCipher(t)

	payload := map[string]any{
		"phones": []any{"555-0100", 7},
	}
	sealed := c.EncryptPayload(payload)
	items, ok := sealed["phones"].([]any)
	if !ok {
		t.Fatal("expected []any")
	}
	if items[0] == "555-0100" {
		t.Error("string element should be encrypted")
	}
	if items[1] != 7 {
		t.Error("non-string element should pass through")
	}
}

func TestEncryptPayload_NilPayload(t *testing.T) {
	c := newTestCipher(t)
	if c.EncryptPayload(nil) != nil {
		t.Error("nil payload should stay nil")
	}
}
