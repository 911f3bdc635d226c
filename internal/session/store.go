package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"guardian/internal/encryption"
	"guardian/internal/risk"
)

// ErrNotFound is returned for unknown session ids and for operations
// whose preconditions (such as a prior risk score) are missing.
var ErrNotFound = errors.New("session not found")

// Store owns every session. All operations serialize on one mutex:
// reads refresh last_accessed_at, so there is no read-only path.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cipher   *encryption.Cipher
	policy   RetentionPolicy

	// now is swappable so retention tests can simulate the clock.
	now func() time.Time
}

// NewStore creates an empty store. The cipher is shared, never owned.
func NewStore(cipher *encryption.Cipher, policy RetentionPolicy) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		cipher:   cipher,
		policy:   policy,
		now:      time.Now,
	}
}

// Policy returns the immutable retention policy snapshot.
func (s *Store) Policy() RetentionPolicy {
	return s.policy
}

// StartSession allocates a session with both ids encrypted at rest.
func (s *Store) StartSession(userID, deviceID string, module Module) string {
	now := s.now().UTC()
	sess := &Session{
		ID:             uuid.New().String(),
		Module:         module,
		UserID:         s.cipher.Encrypt(userID),
		DeviceID:       s.cipher.Encrypt(deviceID),
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess.ID
}

// AppendResult carries everything the dispatcher needs from one append:
// the stored event (decrypted form) and a decrypted snapshot of the full
// log including it, taken under the same lock so the rescore reflects
// this append.
type AppendResult struct {
	Event  Event
	Module Module
	Events []Event
}

// AppendEvent appends a new event with a fresh id, encrypting
// sensitive-keyed payload fields before storage.
func (s *Store) AppendEvent(sessionID string, in EventIn) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return AppendResult{}, ErrNotFound
	}

	ts := in.Timestamp.UTC()
	if in.Timestamp.IsZero() {
		ts = s.now().UTC()
	}

	event := Event{
		ID:        uuid.New().String(),
		Type:      in.Type,
		Payload:   s.cipher.EncryptPayload(in.Payload),
		Timestamp: ts,
	}
	sess.Events = append(sess.Events, event)
	sess.LastAccessedAt = s.now().UTC()

	return AppendResult{
		Event:  s.decryptEvent(event),
		Module: sess.Module,
		Events: s.decryptEvents(sess.Events),
	}, nil
}

// GetSession refreshes last_accessed_at and returns a decrypted view.
func (s *Store) GetSession(sessionID string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return View{}, ErrNotFound
	}
	sess.LastAccessedAt = s.now().UTC()
	return s.viewLocked(sess), nil
}

// ModuleOf reports the session's module without counting as an access.
func (s *Store) ModuleOf(sessionID string) (Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	return sess.Module, nil
}

// UpdateLastRisk overwrites the stored last risk value.
func (s *Store) UpdateLastRisk(sessionID string, r risk.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.LastRisk = &r
	return nil
}

// Summarize composes a summary from the stored session and the supplied
// takeaways. Requires a prior risk score.
func (s *Store) Summarize(sessionID string, keyTakeaways []string) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.LastRisk == nil {
		return Summary{}, ErrNotFound
	}
	sess.LastAccessedAt = s.now().UTC()
	return Summary{
		SessionID:    sess.ID,
		Module:       sess.Module,
		CreatedAt:    sess.CreatedAt,
		LastRisk:     *sess.LastRisk,
		KeyTakeaways: keyTakeaways,
	}, nil
}

// LastRisk returns the stored risk value, if any, refreshing access time.
func (s *Store) LastRisk(sessionID string) (*risk.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	sess.LastAccessedAt = s.now().UTC()
	if sess.LastRisk == nil {
		return nil, nil
	}
	r := *sess.LastRisk
	return &r, nil
}

// Delete removes a session outright.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Stats counts live sessions and events by module.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{ByModule: make(map[string]int)}
	for _, sess := range s.sessions {
		stats.Sessions++
		stats.TotalEvents += len(sess.Events)
		stats.ByModule[string(sess.Module)]++
	}
	return stats
}

// ExpireIdle deletes sessions idle beyond the ttl. Returns deleted ids.
func (s *Store) ExpireIdle() []string {
	if s.policy.SessionTTLHours <= 0 {
		return nil
	}
	cutoff := time.Duration(s.policy.SessionTTLHours) * time.Hour
	return s.expire(func(sess *Session, now time.Time) bool {
		return now.Sub(sess.LastAccessedAt) > cutoff
	})
}

// ExpireAged deletes sessions older than the hard age cap regardless of
// access. Returns deleted ids.
func (s *Store) ExpireAged() []string {
	if s.policy.MaxSessionAgeHours <= 0 {
		return nil
	}
	cutoff := time.Duration(s.policy.MaxSessionAgeHours) * time.Hour
	return s.expire(func(sess *Session, now time.Time) bool {
		return now.Sub(sess.CreatedAt) > cutoff
	})
}

func (s *Store) expire(stale func(*Session, time.Time) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var deleted []string
	for id, sess := range s.sessions {
		if stale(sess, now) {
			delete(s.sessions, id)
			deleted = append(deleted, id)
		}
	}
	return deleted
}

// TrimEvents drops events older than the event-retention window from
// every surviving session. Returns the number of events removed.
func (s *Store) TrimEvents() int {
	if s.policy.EventRetentionDays <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().AddDate(0, 0, -s.policy.EventRetentionDays)
	trimmed := 0
	for _, sess := range s.sessions {
		kept := sess.Events[:0]
		for _, event := range sess.Events {
			if event.Timestamp.After(cutoff) {
				kept = append(kept, event)
			} else {
				trimmed++
			}
		}
		sess.Events = kept
	}
	return trimmed
}

func (s *Store) viewLocked(sess *Session) View {
	return View{
		SessionID:      sess.ID,
		Module:         sess.Module,
		UserID:         s.cipher.Decrypt(sess.UserID),
		DeviceID:       s.cipher.Decrypt(sess.DeviceID),
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		Events:         s.decryptEvents(sess.Events),
		LastRisk:       sess.LastRisk,
	}
}

func (s *Store) decryptEvents(events []Event) []Event {
	out := make([]Event, len(events))
	for i, event := range events {
		out[i] = s.decryptEvent(event)
	}
	return out
}

func (s *Store) decryptEvent(event Event) Event {
	return Event{
		ID:        event.ID,
		Type:      event.Type,
		Payload:   s.cipher.DecryptPayload(event.Payload),
		Timestamp: event.Timestamp,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
