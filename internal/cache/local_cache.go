// Package cache holds an in-process record cache for deployments that run
// without Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"assistant/backend/internal/domain"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

const cleanupInterval = time.Minute

// LocalCache keeps copies of accounts and messages in memory with a TTL.
//
// When the cache is full, expired entries are dropped first and then the
// entry closest to expiry is evicted.
type LocalCache struct {
	mu      sync.RWMutex
	data    map[string]cacheEntry
	maxSize int
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// NewLocalCache creates a cache holding at most maxSize entries and starts
// the expiry sweep. Call Close to stop it.
func NewLocalCache(maxSize int) *LocalCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &LocalCache{
		data:    make(map[string]cacheEntry),
		maxSize: maxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func accountKey(userID, id string) string {
	return fmt.Sprintf("account:%s:%s", userID, id)
}

func messageKey(userID, id string) string {
	return fmt.Sprintf("message:%s:%s", userID, id)
}

// ========== Accounts ==========

// CacheAccount stores a copy of account, sealed secret included.
func (c *LocalCache) CacheAccount(_ context.Context, account *domain.MailboxAccount, ttl time.Duration) error {
	copied := *account
	c.set(accountKey(account.UserID, account.ID), &copied, ttl)
	return nil
}

// GetCachedAccount returns a copy of a cached account or ErrCacheMiss.
func (c *LocalCache) GetCachedAccount(_ context.Context, userID, id string) (*domain.MailboxAccount, error) {
	v, ok := c.get(accountKey(userID, id))
	if !ok {
		return nil, ErrCacheMiss
	}
	copied := *v.(*domain.MailboxAccount)
	return &copied, nil
}

// DeleteCachedAccount drops a cached account.
func (c *LocalCache) DeleteCachedAccount(_ context.Context, userID, id string) error {
	c.delete(accountKey(userID, id))
	return nil
}

// ========== Messages ==========

// CacheMessage stores a copy of message.
func (c *LocalCache) CacheMessage(_ context.Context, message *domain.StoredMessage, ttl time.Duration) error {
	copied := *message
	c.set(messageKey(message.UserID, message.ID), &copied, ttl)
	return nil
}

// GetCachedMessage returns a copy of a cached message or ErrCacheMiss.
func (c *LocalCache) GetCachedMessage(_ context.Context, userID, id string) (*domain.StoredMessage, error) {
	v, ok := c.get(messageKey(userID, id))
	if !ok {
		return nil, ErrCacheMiss
	}
	copied := *v.(*domain.StoredMessage)
	return &copied, nil
}

// DeleteCachedMessage drops a cached message.
func (c *LocalCache) DeleteCachedMessage(_ context.Context, userID, id string) error {
	c.delete(messageKey(userID, id))
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close stops the expiry sweep.
func (c *LocalCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *LocalCache) get(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.delete(key)
		return nil, false
	}
	return entry.value, true
}

func (c *LocalCache) set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evictLocked()
	}
	c.data[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
}

func (c *LocalCache) delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// evictLocked makes room for one entry. c.mu must be held.
func (c *LocalCache) evictLocked() {
	c.removeExpiredLocked()
	if len(c.data) < c.maxSize {
		return
	}

	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range c.data {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	delete(c.data, oldestKey)
}

func (c *LocalCache) removeExpiredLocked() {
	now := c.now()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}

func (c *LocalCache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.removeExpiredLocked()
			c.mu.Unlock()
		}
	}
}
