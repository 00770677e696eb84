package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"assistant/backend/internal/domain"
)

// ErrCacheMiss is returned when a key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores JSON snapshots of accounts and messages.
type Cache struct {
	client *Client
}

// NewCache creates a cache on top of client.
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

func accountKey(userID, id string) string {
	return fmt.Sprintf("account:%s:%s", userID, id)
}

func messageKey(userID, id string) string {
	return fmt.Sprintf("message:%s:%s", userID, id)
}

// ========== Accounts ==========

// cachedAccount carries the sealed secret, which domain.MailboxAccount
// leaves out of its JSON form.
type cachedAccount struct {
	domain.MailboxAccount
	SealedSecret string `json:"sealedSecret"`
}

// CacheAccount stores an account together with its sealed secret.
func (c *Cache) CacheAccount(ctx context.Context, account *domain.MailboxAccount, ttl time.Duration) error {
	entry := cachedAccount{MailboxAccount: *account, SealedSecret: account.Secret}
	return c.set(ctx, accountKey(account.UserID, account.ID), entry, ttl)
}

// GetCachedAccount returns a cached account or ErrCacheMiss.
func (c *Cache) GetCachedAccount(ctx context.Context, userID, id string) (*domain.MailboxAccount, error) {
	var entry cachedAccount
	if err := c.get(ctx, accountKey(userID, id), &entry); err != nil {
		return nil, err
	}
	account := entry.MailboxAccount
	account.Secret = entry.SealedSecret
	return &account, nil
}

// DeleteCachedAccount drops a cached account.
func (c *Cache) DeleteCachedAccount(ctx context.Context, userID, id string) error {
	return c.client.rdb.Del(ctx, accountKey(userID, id)).Err()
}

// ========== Messages ==========

// CacheMessage stores a message.
func (c *Cache) CacheMessage(ctx context.Context, message *domain.StoredMessage, ttl time.Duration) error {
	return c.set(ctx, messageKey(message.UserID, message.ID), message, ttl)
}

// GetCachedMessage returns a cached message or ErrCacheMiss.
func (c *Cache) GetCachedMessage(ctx context.Context, userID, id string) (*domain.StoredMessage, error) {
	var message domain.StoredMessage
	if err := c.get(ctx, messageKey(userID, id), &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// DeleteCachedMessage drops a cached message.
func (c *Cache) DeleteCachedMessage(ctx context.Context, userID, id string) error {
	return c.client.rdb.Del(ctx, messageKey(userID, id)).Err()
}

func (c *Cache) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) get(ctx context.Context, key string, dst interface{}) error {
	data, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, dst)
}
