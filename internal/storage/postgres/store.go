package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"assistant/backend/internal/config"
	"assistant/backend/internal/domain"
	"assistant/backend/internal/storage"
)

// Store is the GORM backed storage for PostgreSQL and MySQL.
type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a PostgreSQL store.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(cfg.DSN), cfg)
}

// NewMySQLStore creates a MySQL store.
func NewMySQLStore(cfg config.DatabaseConfig) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(cfg.DSN), cfg)
}

// NewStoreWithDialector opens the database with any GORM dialector, sizes
// the pool from cfg and migrates the schema.
func NewStoreWithDialector(dialector gorm.Dialector, cfg config.DatabaseConfig) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.MailboxAccount{},
		&domain.StoredMessage{},
		&domain.Task{},
		&domain.Note{},
	)
}

// Health pings the database.
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// ========== User Repository ==========

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if isUniqueViolation(err) {
		return storage.ErrEmailExists
	}
	return err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ========== Account Repository ==========

func (s *Store) CreateAccount(ctx context.Context, account *domain.MailboxAccount) error {
	return s.db.WithContext(ctx).Create(account).Error
}

// UpdateAccount saves every column. Select("*") makes GORM write zero
// values such as IsActive=false.
func (s *Store) UpdateAccount(ctx context.Context, account *domain.MailboxAccount) error {
	result := s.db.WithContext(ctx).Model(&domain.MailboxAccount{}).
		Where("id = ? AND user_id = ?", account.ID, account.UserID).
		Select("*").Omit("id", "user_id", "created_at").
		Updates(account)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID, id string) (*domain.MailboxAccount, error) {
	var account domain.MailboxAccount
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&account).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.MailboxAccount, error) {
	accounts := make([]domain.MailboxAccount, 0)
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("label ASC, created_at ASC").Find(&accounts).Error
	return accounts, err
}

// DeleteAccount removes the account and its messages in one transaction.
func (s *Store) DeleteAccount(ctx context.Context, userID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.MailboxAccount{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return tx.Where("account_id = ?", id).Delete(&domain.StoredMessage{}).Error
	})
}

// ========== Message Repository ==========

func (s *Store) MessageExists(ctx context.Context, accountID, externalID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.StoredMessage{}).
		Where("account_id = ? AND external_id = ?", accountID, externalID).
		Count(&count).Error
	return count > 0, err
}

// CreateMessage relies on idx_message_account_external; a violation maps to
// storage.ErrMessageExists.
func (s *Store) CreateMessage(ctx context.Context, message *domain.StoredMessage) error {
	err := s.db.WithContext(ctx).Create(message).Error
	if isUniqueViolation(err) {
		return storage.ErrMessageExists
	}
	return err
}

func (s *Store) GetMessage(ctx context.Context, userID, id string) (*domain.StoredMessage, error) {
	var message domain.StoredMessage
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&message).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

func (s *Store) ListMessages(ctx context.Context, filter domain.MessageFilter) ([]domain.StoredMessage, error) {
	query := s.db.WithContext(ctx).Model(&domain.StoredMessage{}).Where("user_id = ?", filter.UserID)

	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.Folder != "" {
		query = query.Where("folder = ?", filter.Folder)
	}
	if filter.IsRead != nil {
		query = query.Where("is_read = ?", *filter.IsRead)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"LOWER(subject) LIKE ? OR LOWER(from_email) LIKE ? OR LOWER(to_emails) LIKE ? OR LOWER(body_text) LIKE ?",
			like, like, like, like)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	messages := make([]domain.StoredMessage, 0)
	err := query.Order("sent_at DESC").Find(&messages).Error
	return messages, err
}

func (s *Store) UpdateMessageFlags(ctx context.Context, userID, id string, flags domain.MessageFlags) (*domain.StoredMessage, error) {
	updates := map[string]interface{}{}
	if flags.IsRead != nil {
		updates["is_read"] = *flags.IsRead
	}
	if flags.IsStarred != nil {
		updates["is_starred"] = *flags.IsStarred
	}

	// RowsAffected is not checked: MySQL reports 0 for unchanged values, so
	// existence is decided by the read below.
	if len(updates) > 0 {
		err := s.db.WithContext(ctx).Model(&domain.StoredMessage{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates).Error
		if err != nil {
			return nil, err
		}
	}
	return s.GetMessage(ctx, userID, id)
}

// ========== Task & Note Repository ==========

func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	return s.db.WithContext(ctx).Create(task).Error
}

func (s *Store) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	tasks := make([]domain.Task, 0)
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

func (s *Store) CreateNote(ctx context.Context, note *domain.Note) error {
	return s.db.WithContext(ctx).Create(note).Error
}

func (s *Store) ListNotes(ctx context.Context, userID string) ([]domain.Note, error) {
	notes := make([]domain.Note, 0)
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&notes).Error
	return notes, err
}
