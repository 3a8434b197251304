package auth

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store used by service tests. Mutations take the
// same lock so the rotation compare-and-set behaves like the database one.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*User
	tokens map[string]*RefreshToken
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]*User{},
		tokens: map[string]*RefreshToken{},
	}
}

func (m *memStore) Users(ctx context.Context) UserStore {
	return (*memUserStore)(m)
}

func (m *memStore) RefreshTokens(ctx context.Context) RefreshTokenStore {
	return (*memTokenStore)(m)
}

type memUserStore memStore

func (m *memUserStore) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return ErrConflict
		}
	}
	u.CreatedAt = time.Now()
	clone := *u
	m.users[u.ID] = &clone
	return nil
}

func (m *memUserStore) Find(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type memTokenStore memStore

func (m *memTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[tok.ID]; ok {
		return ErrConflict
	}
	tok.CreatedAt = time.Now()
	clone := *tok
	m.tokens[tok.ID] = &clone
	return nil
}

func (m *memTokenStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *tok
	return &clone, nil
}

func (m *memTokenStore) MarkRotated(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[id]
	if !ok || tok.Status != TokenStatusActive {
		return false, nil
	}
	tok.Status = TokenStatusRotated
	return true, nil
}

func (m *memTokenStore) MarkExpired(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.tokens[id]; ok && tok.Status == TokenStatusActive {
		tok.Status = TokenStatusExpired
	}
	return nil
}

func (m *memTokenStore) ChainOwner(ctx context.Context, chainID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.tokens {
		if tok.ChainID == chainID {
			return tok.UserID, nil
		}
	}
	return "", ErrNotFound
}

func (m *memTokenStore) RevokeChain(ctx context.Context, chainID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.tokens {
		if tok.ChainID == chainID && (tok.Status == TokenStatusActive || tok.Status == TokenStatusRotated) {
			tok.Status = TokenStatusRevoked
		}
	}
	return nil
}

func (m *memTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.tokens {
		if tok.UserID == userID && (tok.Status == TokenStatusActive || tok.Status == TokenStatusRotated) {
			tok.Status = TokenStatusRevoked
		}
	}
	return nil
}
