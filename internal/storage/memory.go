package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"eventhub/internal/models"
)

// MemoryStorage implements the Storage interface using in-memory data structures.
// Data is lost on restart. Records are copied in and out so callers cannot
// modify stored state.
type MemoryStorage struct {
	mu            sync.RWMutex
	registrations map[string][]*models.Registration // keyed by event ID
	shortLinks    map[string]*models.ShortLink
	apiKeys       map[string]*models.APIKey // keyed by hash
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		registrations: make(map[string][]*models.Registration),
		shortLinks:    make(map[string]*models.ShortLink),
		apiKeys:       make(map[string]*models.APIKey),
	}
}

func (m *MemoryStorage) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.registrations[reg.EventID] {
		if existing.Email == reg.Email {
			return fmt.Errorf("registration for %s in event %s: %w", reg.Email, reg.EventID, ErrConflict)
		}
	}

	regCopy := *reg
	m.registrations[reg.EventID] = append(m.registrations[reg.EventID], &regCopy)
	return nil
}

func (m *MemoryStorage) ListRegistrations(ctx context.Context, eventID string) ([]*models.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.registrations[eventID]
	regs := make([]*models.Registration, 0, len(stored))
	for _, reg := range stored {
		regCopy := *reg
		regs = append(regs, &regCopy)
	}
	sort.SliceStable(regs, func(i, j int) bool {
		return regs[i].CreatedAt.Before(regs[j].CreatedAt)
	})
	return regs, nil
}

func (m *MemoryStorage) CreateShortLink(ctx context.Context, link *models.ShortLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.shortLinks[link.Key]; exists {
		return fmt.Errorf("short link %s: %w", link.Key, ErrConflict)
	}

	linkCopy := *link
	if link.ExpiresAt != nil {
		expires := *link.ExpiresAt
		linkCopy.ExpiresAt = &expires
	}
	m.shortLinks[link.Key] = &linkCopy
	return nil
}

func (m *MemoryStorage) GetShortLink(ctx context.Context, key string) (*models.ShortLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.shortLinks[key]
	if !exists {
		return nil, fmt.Errorf("short link %s: %w", key, ErrNotFound)
	}

	linkCopy := *link
	if link.ExpiresAt != nil {
		expires := *link.ExpiresAt
		linkCopy.ExpiresAt = &expires
	}
	return &linkCopy, nil
}

func (m *MemoryStorage) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.apiKeys[key.KeyHash]; exists {
		return fmt.Errorf("api key %s: %w", key.Prefix, ErrConflict)
	}

	keyCopy := *key
	keyCopy.Permissions = append([]string(nil), key.Permissions...)
	m.apiKeys[key.KeyHash] = &keyCopy
	return nil
}

func (m *MemoryStorage) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, exists := m.apiKeys[hash]
	if !exists {
		return nil, fmt.Errorf("api key: %w", ErrNotFound)
	}

	keyCopy := *key
	keyCopy.Permissions = append([]string(nil), key.Permissions...)
	return &keyCopy, nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
