package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultTTL 为别名缓存的默认过期时间。
const DefaultTTL = 10 * time.Minute

type memoryEntry struct {
	alias   string
	expires time.Time
}

// Memory 是带 TTL 的进程内别名缓存。
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[common.Address]memoryEntry
	now     func() time.Time
}

// NewMemory 创建内存缓存，ttl <= 0 时使用 DefaultTTL。
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		entries: make(map[common.Address]memoryEntry),
		now:     time.Now,
	}
}

// GetAlias returns the cached alias of author.
func (m *Memory) GetAlias(_ context.Context, author common.Address) (string, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[author]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(entry.expires) {
		m.mu.Lock()
		if current, still := m.entries[author]; still && current.expires.Equal(entry.expires) {
			delete(m.entries, author)
		}
		m.mu.Unlock()
		return "", false, nil
	}
	return entry.alias, true, nil
}

// SetAlias stores alias for the configured TTL.
func (m *Memory) SetAlias(_ context.Context, author common.Address, alias string) error {
	m.mu.Lock()
	m.entries[author] = memoryEntry{alias: alias, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

// Len 返回当前缓存条目数（含尚未清理的过期条目）。
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Purge drops expired entries.
func (m *Memory) Purge() {
	now := m.now()
	m.mu.Lock()
	for addr, entry := range m.entries {
		if !now.Before(entry.expires) {
			delete(m.entries, addr)
		}
	}
	m.mu.Unlock()
}
