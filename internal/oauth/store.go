package oauth

import (
	"context"
	"sort"
	"sync"
	"time"

	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/repository"
)

// TokenStore persists encrypted tokens. GetToken returns repository.ErrNotFound when the
// user never connected the provider.
type TokenStore interface {
	GetToken(ctx context.Context, userID string, provider model.Provider) (*model.OAuthToken, error)
	SaveToken(ctx context.Context, token *model.OAuthToken) error
	DeleteToken(ctx context.Context, userID string, provider model.Provider) error
	ListTokens(ctx context.Context) ([]model.OAuthToken, error)
	TouchToken(ctx context.Context, userID string, provider model.Provider, at time.Time) error
}

// DataPurger removes everything derived from a user's mailbox
type DataPurger interface {
	PurgeUserEmailData(ctx context.Context, userID string, provider model.Provider) (model.PurgeResult, error)
}

// MemoryStore is a process-local TokenStore
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]model.OAuthToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]model.OAuthToken)}
}

func memoryKey(userID string, provider model.Provider) string {
	return userID + "|" + string(provider)
}

func (s *MemoryStore) GetToken(_ context.Context, userID string, provider model.Provider) (*model.OAuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[memoryKey(userID, provider)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tok, nil
}

func (s *MemoryStore) SaveToken(_ context.Context, token *model.OAuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now
	s.tokens[memoryKey(token.UserID, token.Provider)] = *token
	return nil
}

func (s *MemoryStore) DeleteToken(_ context.Context, userID string, provider model.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, memoryKey(userID, provider))
	return nil
}

func (s *MemoryStore) ListTokens(_ context.Context) ([]model.OAuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.OAuthToken, 0, len(s.tokens))
	for _, tok := range s.tokens {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool {
		return memoryKey(out[i].UserID, out[i].Provider) < memoryKey(out[j].UserID, out[j].Provider)
	})
	return out, nil
}

func (s *MemoryStore) TouchToken(_ context.Context, userID string, provider model.Provider, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey(userID, provider)
	if tok, ok := s.tokens[key]; ok {
		tok.LastUsed = &at
		s.tokens[key] = tok
	}
	return nil
}
