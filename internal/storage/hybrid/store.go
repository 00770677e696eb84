// Package hybrid combines a database store with a read-through cache, Redis
// or in-process, for the records the pipeline reads on every request.
package hybrid

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"assistant/backend/internal/cache"
	"assistant/backend/internal/domain"
	"assistant/backend/internal/storage"
	"assistant/backend/internal/storage/redis"
)

const defaultTTL = 10 * time.Minute

// Cache is the record cache the hybrid store reads through.
type Cache interface {
	CacheAccount(ctx context.Context, account *domain.MailboxAccount, ttl time.Duration) error
	GetCachedAccount(ctx context.Context, userID, id string) (*domain.MailboxAccount, error)
	DeleteCachedAccount(ctx context.Context, userID, id string) error
	CacheMessage(ctx context.Context, message *domain.StoredMessage, ttl time.Duration) error
	GetCachedMessage(ctx context.Context, userID, id string) (*domain.StoredMessage, error)
	DeleteCachedMessage(ctx context.Context, userID, id string) error
}

var (
	_ Cache = (*redis.Cache)(nil)
	_ Cache = (*cache.LocalCache)(nil)
)

// Store delegates every write to the database and caches single-record
// reads of accounts and messages. Cache failures are logged and never fail
// the call.
type Store struct {
	storage.Store
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore wraps db with cache.
func NewStore(db storage.Store, cache Cache, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{Store: db, cache: cache, ttl: defaultTTL, log: log.Named("hybrid")}
}

// ========== Accounts ==========

// UpdateAccount writes through and drops the cached copy.
func (s *Store) UpdateAccount(ctx context.Context, account *domain.MailboxAccount) error {
	if err := s.Store.UpdateAccount(ctx, account); err != nil {
		return err
	}
	s.forgetAccount(ctx, account.UserID, account.ID)
	return nil
}

// GetAccount reads from the cache first.
func (s *Store) GetAccount(ctx context.Context, userID, id string) (*domain.MailboxAccount, error) {
	if account, err := s.cache.GetCachedAccount(ctx, userID, id); err == nil {
		return account, nil
	}

	account, err := s.Store.GetAccount(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.CacheAccount(ctx, account, s.ttl); err != nil {
		s.log.Warn("failed to cache account", zap.String("account_id", id), zap.Error(err))
	}
	return account, nil
}

// DeleteAccount deletes from the database and drops the cached copy.
// Cached messages of the account expire on their own TTL.
func (s *Store) DeleteAccount(ctx context.Context, userID, id string) error {
	if err := s.Store.DeleteAccount(ctx, userID, id); err != nil {
		return err
	}
	s.forgetAccount(ctx, userID, id)
	return nil
}

func (s *Store) forgetAccount(ctx context.Context, userID, id string) {
	if err := s.cache.DeleteCachedAccount(ctx, userID, id); err != nil {
		s.log.Warn("failed to drop cached account", zap.String("account_id", id), zap.Error(err))
	}
}

// ========== Messages ==========

// GetMessage reads from the cache first.
func (s *Store) GetMessage(ctx context.Context, userID, id string) (*domain.StoredMessage, error) {
	if message, err := s.cache.GetCachedMessage(ctx, userID, id); err == nil {
		return message, nil
	}

	message, err := s.Store.GetMessage(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.CacheMessage(ctx, message, s.ttl); err != nil {
		s.log.Warn("failed to cache message", zap.String("message_id", id), zap.Error(err))
	}
	return message, nil
}

// UpdateMessageFlags writes through and drops the cached copy.
func (s *Store) UpdateMessageFlags(ctx context.Context, userID, id string, flags domain.MessageFlags) (*domain.StoredMessage, error) {
	message, err := s.Store.UpdateMessageFlags(ctx, userID, id, flags)
	if err != nil {
		return nil, err
	}
	if err := s.cache.DeleteCachedMessage(ctx, userID, id); err != nil {
		s.log.Warn("failed to drop cached message", zap.String("message_id", id), zap.Error(err))
	}
	return message, nil
}

// Close closes the database store.
func (s *Store) Close() error {
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
