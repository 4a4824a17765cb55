package session

import (
	"context"
	"sync"

	"github.com/blockmind/fastgemini/pkg/models"
)

// ChatStorage persists conversation history per chat ID. Reads return
// independent copies: mutating a returned slice or its messages never
// affects the stored history.
type ChatStorage interface {
	// GetHistory returns the stored history for the chat, empty when the
	// chat is unknown.
	GetHistory(ctx context.Context, chatID string) ([]models.Message, error)

	// UpdateHistory replaces the stored history for the chat.
	UpdateHistory(ctx context.Context, chatID string, history []models.Message) error

	// AppendHistory appends messages to the stored history.
	AppendHistory(ctx context.Context, chatID string, messages ...models.Message) error
}

// MemoryStorage is a process-local ChatStorage. Safe for concurrent use.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string][]models.Message
}

// NewMemoryStorage builds an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{sessions: make(map[string][]models.Message)}
}

func (s *MemoryStorage) GetHistory(_ context.Context, chatID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneMessages(s.sessions[chatID]), nil
}

func (s *MemoryStorage) UpdateHistory(_ context.Context, chatID string, history []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[chatID] = models.CloneMessages(history)
	return nil
}

func (s *MemoryStorage) AppendHistory(_ context.Context, chatID string, messages ...models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[chatID] = append(s.sessions[chatID], models.CloneMessages(messages)...)
	return nil
}
