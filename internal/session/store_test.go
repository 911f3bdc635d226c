package session

import (
	"errors"
	"testing"
	"time"

	"guardian/internal/encryption"
)

func newTestStore(t *testing.T, policy RetentionPolicy) *Store {
	t.Helper()
	cipher, err := encryption.New(encryption.Config{Enabled: true, Password: "test", Salt: "test"})
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	return NewStore(cipher, policy)
}

func TestStore_StartAndGet(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())

	id := store.StartSession("user-1", "device-1", ModuleCallGuard)
	if id == "" {
		t.Fatal("expected a session id")
	}

	view, err := store.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if view.Module != ModuleCallGuard {
		t.Errorf("expected callguard module, got %s", view.Module)
	}
	if view.UserID != "user-1" || view.DeviceID != "device-1" {
		t.Errorf("view should be decrypted, got %q/%q", view.UserID, view.DeviceID)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	if _, err := store.GetSession("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_AppendEventSnapshotIncludesAppend(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	id := store.StartSession("u", "d", ModuleCallGuard)

	first, err := store.AppendEvent(id, EventIn{Type: "signal", Payload: map[string]any{"signal_key": "urgency"}})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if len(first.Events) != 1 {
		t.Fatalf("expected snapshot of 1 event, got %d", len(first.Events))
	}

	second, err := store.AppendEvent(id, EventIn{Type: "signal", Payload: map[string]any{"signal_key": "gift_cards"}})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if len(second.Events) != 2 {
		t.Fatalf("expected snapshot of 2 events, got %d", len(second.Events))
	}
	if second.Events[0].Payload["signal_key"] != "urgency" {
		t.Error("snapshot should preserve append order")
	}
	if second.Event.ID == "" || second.Event.ID == first.Event.ID {
		t.Error("each event needs a fresh id")
	}
}

func TestStore_AppendNormalizesCallerTimestamp(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	id := store.StartSession("u", "d", ModuleCallGuard)

	ts := time.Date(2026, 1, 1, 17, 0, 0, 0, time.FixedZone("UTC+5", 5*60*60))
	result, err := store.AppendEvent(id, EventIn{
		Type:      "signal",
		Payload:   map[string]any{"signal_key": "urgency"},
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	got := result.Event.Timestamp
	if got.Location() != time.UTC {
		t.Errorf("stored timestamp should be UTC, got %v", got.Location())
	}
	if !got.Equal(ts) {
		t.Errorf("normalization changed the instant: %v vs %v", got, ts)
	}
}

func TestStore_AppendEncryptsSensitiveFields(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	id := store.StartSession("u", "d", ModuleInboxGuard)

	result, err := store.AppendEvent(id, EventIn{
		Type:    "text",
		Payload: map[string]any{"text": "hello", "phone_number": "555-0100"},
	})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	// Returned snapshot is decrypted.
	if result.Event.Payload["phone_number"] != "555-0100" {
		t.Error("returned event should be decrypted")
	}

	// The stored copy is not.
	store.mu.Lock()
	stored := store.sessions[id].Events[0].Payload["phone_number"]
	store.mu.Unlock()
	if stored == "555-0100" {
		t.Error("stored payload should hold ciphertext")
	}
}

func TestStore_SummarizeRequiresRisk(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	id := store.StartSession("u", "d", ModuleMoneyGuard)

	if _, err := store.Summarize(id, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound before any risk score, got %v", err)
	}
}

func TestStore_ExpireIdle(t *testing.T) {
	policy := DefaultRetentionPolicy()
	policy.SessionTTLHours = 1
	store := newTestStore(t, policy)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	id := store.StartSession("u", "d", ModuleCallGuard)

	now = now.Add(59 * time.Minute)
	if deleted := store.ExpireIdle(); len(deleted) != 0 {
		t.Errorf("expected no expiry at 59m, got %v", deleted)
	}

	now = now.Add(2 * time.Minute)
	deleted := store.ExpireIdle()
	if len(deleted) != 1 || deleted[0] != id {
		t.Errorf("expected expiry at 61m, got %v", deleted)
	}
	if _, err := store.GetSession(id); !errors.Is(err, ErrNotFound) {
		t.Error("expired session should be gone")
	}
}

func TestStore_AccessRefreshesIdleClock(t *testing.T) {
	policy := DefaultRetentionPolicy()
	policy.SessionTTLHours = 1
	store := newTestStore(t, policy)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	id := store.StartSession("u", "d", ModuleCallGuard)

	now = now.Add(45 * time.Minute)
	if _, err := store.GetSession(id); err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	// 75 minutes after start, but only 30 after the last read.
	now = now.Add(30 * time.Minute)
	if deleted := store.ExpireIdle(); len(deleted) != 0 {
		t.Errorf("read should have refreshed the idle clock, got %v", deleted)
	}
}

func TestStore_ExpireAgedIgnoresAccess(t *testing.T) {
	policy := DefaultRetentionPolicy()
	policy.MaxSessionAgeHours = 2
	store := newTestStore(t, policy)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	id := store.StartSession("u", "d", ModuleCallGuard)

	// Keep touching the session; the hard cap must still fire.
	for i := 0; i < 4; i++ {
		now = now.Add(31 * time.Minute)
		if _, err := store.GetSession(id); err != nil {
			t.Fatalf("GetSession: %v", err)
		}
	}

	deleted := store.ExpireAged()
	if len(deleted) != 1 {
		t.Errorf("expected hard-age expiry, got %v", deleted)
	}
}

func TestStore_ExpiryDisabledByZero(t *testing.T) {
	policy := DefaultRetentionPolicy()
	policy.SessionTTLHours = 0
	policy.MaxSessionAgeHours = 0
	store := newTestStore(t, policy)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	store.StartSession("u", "d", ModuleCallGuard)
	now = now.Add(1000 * time.Hour)

	if deleted := store.ExpireIdle(); len(deleted) != 0 {
		t.Errorf("ttl 0 should disable idle expiry, got %v", deleted)
	}
	if deleted := store.ExpireAged(); len(deleted) != 0 {
		t.Errorf("max age 0 should disable age expiry, got %v", deleted)
	}
}

func TestStore_TrimEvents(t *testing.T) {
	policy := DefaultRetentionPolicy()
	policy.EventRetentionDays = 30
	store := newTestStore(t, policy)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	id := store.StartSession("u", "d", ModuleCallGuard)
	if _, err := store.AppendEvent(id, EventIn{
		Type:      "signal",
		Payload:   map[string]any{"signal_key": "urgency"},
		Timestamp: now.AddDate(0, 0, -31),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendEvent(id, EventIn{
		Type:    "signal",
		Payload: map[string]any{"signal_key": "gift_cards"},
	}); err != nil {
		t.Fatal(err)
	}

	if trimmed := store.TrimEvents(); trimmed != 1 {
		t.Errorf("expected 1 trimmed event, got %d", trimmed)
	}

	view, err := store.GetSession(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Events) != 1 || view.Events[0].Payload["signal_key"] != "gift_cards" {
		t.Errorf("expected only the recent event to survive, got %v", view.Events)
	}
}

func TestStore_Stats(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())

	a := store.StartSession("u", "d", ModuleCallGuard)
	store.StartSession("u", "d", ModuleCallGuard)
	store.StartSession("u", "d", ModuleInboxGuard)
	if _, err := store.AppendEvent(a, EventIn{Type: "signal", Payload: map[string]any{"signal_key": "urgency"}}); err != nil {
		t.Fatal(err)
	}

	stats := store.Stats()
	if stats.Sessions != 3 {
		t.Errorf("expected 3 sessions, got %d", stats.Sessions)
	}
	if stats.TotalEvents != 1 {
		t.Errorf("expected 1 event, got %d", stats.TotalEvents)
	}
	if stats.ByModule["callguard"] != 2 || stats.ByModule["inboxguard"] != 1 {
		t.Errorf("unexpected module counts: %v", stats.ByModule)
	}
}

func TestParseModule(t *testing.T) {
	for _, name := range []string{"callguard", "moneyguard", "inboxguard", "identitywatch"} {
		if _, err := ParseModule(name); err != nil {
			t.Errorf("ParseModule(%q): %v", name, err)
		}
	}
	if _, err := ParseModule("weather"); err == nil {
		t.Error("expected error for unknown module")
	}
}
