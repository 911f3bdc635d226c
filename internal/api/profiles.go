package api

import (
	"fmt"
	"sync"
	"time"

	"guardian/internal/encryption"
)

// identityProfile is a monitored identity. Contact details are held
// encrypted; nothing in this store is ever returned to callers beyond
// the profile id.
type identityProfile struct {
	ID       string
	Emails   []string
	Phones   []string
	FullName string
	State    string
	Created  time.Time
}

// profileStore keeps identity profiles in memory, mirroring the session
// store's no-persistence rule.
type profileStore struct {
	mu       sync.Mutex
	profiles map[string]identityProfile
	cipher   *encryption.Cipher
	seq      int
}

func newProfileStore(cipher *encryption.Cipher) *profileStore {
	return &profileStore{
		profiles: make(map[string]identityProfile),
		cipher:   cipher,
	}
}

func (p *profileStore) create(emails, phones []string, fullName, state string) identityProfile {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	profile := identityProfile{
		ID:       fmt.Sprintf("profile-%d", p.seq),
		Emails:   p.encryptAll(emails),
		Phones:   p.encryptAll(phones),
		FullName: p.cipher.Encrypt(fullName),
		State:    state,
		Created:  time.Now().UTC(),
	}
	p.profiles[profile.ID] = profile
	return profile
}

func (p *profileStore) exists(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.profiles[id]
	return ok
}

func (p *profileStore) encryptAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = p.cipher.Encrypt(v)
	}
	return out
}
