package usercache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/stylefront/internal/sessionapi"
)

type memoryEntry struct {
	user      sessionapi.User
	expiresAt time.Time
}

// Memory is an in-process Cache. Entries are copied on the way in and out so
// callers cannot mutate what is stored.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

var (
	_ Cache   = (*Memory)(nil)
	_ Cleaner = (*Memory)(nil)
)

// NewMemory creates an in-memory cache. A non-positive ttl uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (*sessionapi.User, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || !m.now().Before(entry.expiresAt) {
		return nil, ErrMiss
	}
	user := entry.user
	return &user, nil
}

func (m *Memory) Put(_ context.Context, key string, user *sessionapi.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{user: *user, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Cleanup drops expired entries and returns how many were removed.
func (m *Memory) Cleanup(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	count := 0
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
