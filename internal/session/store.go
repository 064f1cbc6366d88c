// Package session holds the opaque session token shared by the API clients.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lightningmodel/lnchat/internal/store"
)

// TokenKey is the fixed storage key for the persisted token.
const TokenKey = "sessionToken"

// Store is the process-wide holder of the session token. It writes every
// change through to its backend so the next process start sees it.
type Store struct {
	backend store.Backend

	mu    sync.RWMutex
	token string
}

// NewStore wraps backend. Call Init before first use to pick up a persisted token.
func NewStore(backend store.Backend) *Store {
	return &Store{backend: backend}
}

// Init reads the persisted token, if any.
func (s *Store) Init() error {
	tok, err := s.backend.Get(TokenKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: loading token: %w", err)
	}
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	return nil
}

// Token returns the current token, or "" if none is held.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Active reports whether a token is held.
func (s *Store) Active() bool {
	return s.Token() != ""
}

// Set replaces the token and persists it.
func (s *Store) Set(token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	if err := s.backend.Put(TokenKey, token); err != nil {
		return fmt.Errorf("session: persisting token: %w", err)
	}
	return nil
}

// Clear drops the token in memory and in the backend. The in-memory token is
// cleared even if the backend write fails.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if err := s.backend.Delete(TokenKey); err != nil {
		return fmt.Errorf("session: removing token: %w", err)
	}
	return nil
}
