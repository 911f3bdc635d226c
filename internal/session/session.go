// Package session holds the in-memory session engine: the append-only
// per-session event log, the encrypting store, and the retention
// supervisor that expires idle and aged sessions.
package session

import (
	"fmt"
	"time"

	"guardian/internal/risk"
)

// Module identifies which scorer owns a session's evidence.
type Module string

const (
	ModuleCallGuard     Module = "callguard"
	ModuleMoneyGuard    Module = "moneyguard"
	ModuleInboxGuard    Module = "inboxguard"
	ModuleIdentityWatch Module = "identitywatch"
)

// ParseModule validates a module tag from the wire.
func ParseModule(s string) (Module, error) {
	switch Module(s) {
	case ModuleCallGuard, ModuleMoneyGuard, ModuleInboxGuard, ModuleIdentityWatch:
		return Module(s), nil
	}
	return "", fmt.Errorf("unknown module %q", s)
}

// EventIn is the caller-supplied part of an event.
type EventIn struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Event is one immutable entry in a session's log. The payload may hold
// encrypted sensitive fields while at rest in the store.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Session is the store-owned record. UserID and DeviceID are kept
// encrypted; views returned to callers are decrypted copies.
type Session struct {
	ID             string
	Module         Module
	UserID         string
	DeviceID       string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Events         []Event
	LastRisk       *risk.Response
}

// RetentionPolicy is fixed at store construction.
type RetentionPolicy struct {
	SessionTTLHours    int  `json:"session_ttl_hours"`
	MaxSessionAgeHours int  `json:"max_session_age_hours"`
	EventRetentionDays int  `json:"event_retention_days"`
	PIIRetentionDays   int  `json:"pii_retention_days"`
	EncryptionEnabled  bool `json:"encryption_enabled"`
}

// DefaultRetentionPolicy mirrors the documented environment defaults.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		SessionTTLHours:    24,
		MaxSessionAgeHours: 48,
		EventRetentionDays: 30,
		PIIRetentionDays:   90,
		EncryptionEnabled:  true,
	}
}

// View is a decrypted snapshot of a session, safe to hand to transport.
type View struct {
	SessionID      string         `json:"session_id"`
	Module         Module         `json:"module"`
	UserID         string         `json:"user_id"`
	DeviceID       string         `json:"device_id"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	Events         []Event        `json:"events"`
	LastRisk       *risk.Response `json:"last_risk,omitempty"`
}

// Summary is the read-only result of ending a session. Ending does not
// transition state; the session stays live until retention removes it.
type Summary struct {
	SessionID    string        `json:"session_id"`
	Module       Module        `json:"module"`
	CreatedAt    time.Time     `json:"created_at"`
	LastRisk     risk.Response `json:"last_risk"`
	KeyTakeaways []string      `json:"key_takeaways"`
}

// Stats summarizes the live store for the control API.
type Stats struct {
	Sessions    int            `json:"sessions"`
	TotalEvents int            `json:"total_events"`
	ByModule    map[string]int `json:"by_module"`
}
