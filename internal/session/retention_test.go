package session

import (
	"context"
	"testing"
	"time"
)

func TestSupervisor_SweepNotifiesExpiredSessions(t *testing.T) {
	policy := DefaultRetentionPolicy()
	policy.SessionTTLHours = 1
	store := newTestStore(t, policy)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	id := store.StartSession("u", "d", ModuleCallGuard)

	var gotID, gotReason string
	sv := NewSupervisor(store, time.Minute)
	sv.SetExpiredCallback(func(sessionID, reason string) {
		gotID, gotReason = sessionID, reason
	})

	now = now.Add(2 * time.Hour)
	sv.Sweep()

	if gotID != id {
		t.Errorf("expected callback for %s, got %q", id, gotID)
	}
	if gotReason != "idle" {
		t.Errorf("expected reason idle, got %q", gotReason)
	}
}

func TestSupervisor_SweepReportsMaxAge(t *testing.T) {
	policy := DefaultRetentionPolicy()
	policy.SessionTTLHours = 0 // idle expiry off; only the hard cap fires
	policy.MaxSessionAgeHours = 2
	store := newTestStore(t, policy)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	store.StartSession("u", "d", ModuleMoneyGuard)

	var reasons []string
	sv := NewSupervisor(store, time.Minute)
	sv.SetExpiredCallback(func(_, reason string) {
		reasons = append(reasons, reason)
	})

	now = now.Add(3 * time.Hour)
	sv.Sweep()

	if len(reasons) != 1 || reasons[0] != "max_age" {
		t.Errorf("expected one max_age expiry, got %v", reasons)
	}
}

func TestSupervisor_SweepTrimsAndNotifies(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	id := store.StartSession("u", "d", ModuleCallGuard)
	if _, err := store.AppendEvent(id, EventIn{
		Type:      "signal",
		Payload:   map[string]any{"signal_key": "urgency"},
		Timestamp: now.AddDate(0, 0, -45),
	}); err != nil {
		t.Fatal(err)
	}

	trimmed := 0
	sv := NewSupervisor(store, time.Minute)
	sv.SetTrimmedCallback(func(count int) { trimmed = count })

	sv.Sweep()
	if trimmed != 1 {
		t.Errorf("expected 1 trimmed event, got %d", trimmed)
	}
}

func TestSupervisor_RunDisabledWhenTTLZero(t *testing.T) {
	policy := DefaultRetentionPolicy()
	policy.SessionTTLHours = 0
	policy.MaxSessionAgeHours = 2
	store := newTestStore(t, policy)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	id := store.StartSession("u", "d", ModuleCallGuard)
	now = now.Add(72 * time.Hour)

	sv := NewSupervisor(store, time.Millisecond)
	go sv.Run(context.Background())

	if !sv.Wait(time.Second) {
		t.Fatal("Run should return immediately when session expiry is disabled")
	}
	// The hard cap must not fire either; disabling expiry disables the
	// whole background task.
	if _, err := store.GetSession(id); err != nil {
		t.Errorf("session should survive well past max age: %v", err)
	}
}

func TestSupervisor_RunStopsOnCancel(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	sv := NewSupervisor(store, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go sv.Run(ctx)
	cancel()

	if !sv.Wait(time.Second) {
		t.Error("supervisor did not stop after cancellation")
	}
}

func TestNewSupervisor_DefaultInterval(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	sv := NewSupervisor(store, 0)
	if sv.interval != DefaultSweepInterval {
		t.Errorf("expected default interval, got %v", sv.interval)
	}
}
