package registrytest

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const tokenDuration = 1 * time.Hour

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type tokenEntry struct {
	UID       string
	ExpiresAt time.Time
}

type tokenStore struct {
	mu     sync.RWMutex
	tokens map[string]tokenEntry
}

func newTokenStore() *tokenStore {
	return &tokenStore{tokens: make(map[string]tokenEntry)}
}

func (s *tokenStore) Create(uid string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	s.mu.Lock()
	s.tokens[token] = tokenEntry{UID: uid, ExpiresAt: time.Now().Add(tokenDuration)}
	s.mu.Unlock()
	return token, nil
}

func (s *tokenStore) Get(token string) (string, bool) {
	s.mu.RLock()
	entry, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.ExpiresAt) {
		return "", false
	}
	return entry.UID, true
}

func (s *tokenStore) DeleteAll() {
	s.mu.Lock()
	s.tokens = make(map[string]tokenEntry)
	s.mu.Unlock()
}
