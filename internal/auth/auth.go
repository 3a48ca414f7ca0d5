// Package auth owns the client's auth token. A single Store holds the
// current credential, persists it through a Persister, and tells dependents
// when it is revoked so they can force a re-login instead of reading a
// stale token.
package auth

import (
	"log"
	"sync"
)

// Credential is the result of a successful login. Token, UID and Username
// are always set and cleared together.
type Credential struct {
	Token    string
	UID      string
	Username string
	Server   string
}

// Persister stores the credential in client-local storage.
type Persister interface {
	// Load returns nil, nil when no credential is stored.
	Load() (*Credential, error)
	Save(Credential) error
	Clear() error
}

// RevokeReason says why the token went away.
type RevokeReason string

const (
	// RevokedByLogout means the user logged out.
	RevokedByLogout RevokeReason = "logout"
	// RevokedByServer means the registry answered 401.
	RevokedByServer RevokeReason = "rejected"
	// RevokedByLogin means a new login attempt was refused.
	RevokedByLogin RevokeReason = "login_failed"
)

type Store struct {
	mu        sync.RWMutex
	cred      *Credential
	persist   Persister
	listeners []func(RevokeReason)
}

// NewStore creates an empty store. p may be nil for an in-memory store.
func NewStore(p Persister) *Store {
	return &Store{persist: p}
}

// Restore loads a previously persisted credential, if any.
func (s *Store) Restore() error {
	if s.persist == nil {
		return nil
	}
	c, err := s.persist.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cred = c
	s.mu.Unlock()
	return nil
}

// Token returns the current bearer token.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil || s.cred.Token == "" {
		return "", false
	}
	return s.cred.Token, true
}

// Credential returns a copy of the current credential.
func (s *Store) Credential() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return Credential{}, false
	}
	return *s.cred, true
}

// Set installs the credential from a successful login.
func (s *Store) Set(c Credential) error {
	if s.persist != nil {
		if err := s.persist.Save(c); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.cred = &c
	s.mu.Unlock()
	log.Printf("[auth] logged in as %s", c.UID)
	return nil
}

// OnRevoke registers fn to run whenever the token is cleared.
func (s *Store) OnRevoke(fn func(RevokeReason)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Logout clears the token on user request.
func (s *Store) Logout() error {
	return s.clear(RevokedByLogout)
}

// Revoke clears the token after the registry rejected it. Listeners run
// even if the store was already empty so every rejected caller is told.
func (s *Store) Revoke() {
	if err := s.clear(RevokedByServer); err != nil {
		log.Printf("[auth] clear persisted credential: %v", err)
	}
}

// Reject clears the token after a refused login. The previous credential
// is not kept around as a fallback.
func (s *Store) Reject() {
	if err := s.clear(RevokedByLogin); err != nil {
		log.Printf("[auth] clear persisted credential: %v", err)
	}
}

func (s *Store) clear(reason RevokeReason) error {
	s.mu.Lock()
	s.cred = nil
	listeners := make([]func(RevokeReason), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	var err error
	if s.persist != nil {
		err = s.persist.Clear()
	}
	log.Printf("[auth] token cleared (%s)", reason)
	for _, fn := range listeners {
		fn(reason)
	}
	return err
}
