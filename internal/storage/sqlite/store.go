// Package sqlite is a single-file storage backend built on sqlx and the
// pure-Go modernc SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/storage"
)

// Store implements storage.Store on SQLite.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore opens (or creates) the database at path, enables WAL and
// foreign keys, and applies pending migrations. ":memory:" gives a private
// database that lives as long as the store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "assistant.db"
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Health pings the database.
func (s *Store) Health() error {
	return s.db.Ping()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ========== Users ==========

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, display_name, is_active, created_at, updated_at)
		VALUES (:id, :email, :display_name, :is_active, :created_at, :updated_at)`,
		utcUser(*user))
	if isUniqueViolation(err) {
		return storage.ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = ?", id); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = ?", email); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ========== Accounts ==========

const accountColumns = `id, user_id, label, provider, email_address,
	imap_server, imap_port, imap_use_ssl, smtp_server, smtp_port, smtp_use_tls,
	username, secret, is_active, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, account *domain.MailboxAccount) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO mailbox_accounts (`+accountColumns+`) VALUES (
			:id, :user_id, :label, :provider, :email_address,
			:imap_server, :imap_port, :imap_use_ssl, :smtp_server, :smtp_port, :smtp_use_tls,
			:username, :secret, :is_active, :created_at, :updated_at)`,
		utcAccount(*account))
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, account *domain.MailboxAccount) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE mailbox_accounts SET
			label = :label, provider = :provider, email_address = :email_address,
			imap_server = :imap_server, imap_port = :imap_port, imap_use_ssl = :imap_use_ssl,
			smtp_server = :smtp_server, smtp_port = :smtp_port, smtp_use_tls = :smtp_use_tls,
			username = :username, secret = :secret, is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id`,
		utcAccount(*account))
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) GetAccount(ctx context.Context, userID, id string) (*domain.MailboxAccount, error) {
	var account domain.MailboxAccount
	err := s.db.GetContext(ctx, &account,
		"SELECT "+accountColumns+" FROM mailbox_accounts WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.MailboxAccount, error) {
	accounts := make([]domain.MailboxAccount, 0)
	err := s.db.SelectContext(ctx, &accounts,
		"SELECT "+accountColumns+" FROM mailbox_accounts WHERE user_id = ? ORDER BY label, created_at", userID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

// DeleteAccount removes the account; its messages go with it through the
// foreign key cascade.
func (s *Store) DeleteAccount(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM mailbox_accounts WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return requireAffected(res)
}

// ========== Messages ==========

const messageColumns = `id, user_id, account_id, external_id, folder, subject,
	from_email, to_emails, cc_emails, bcc_emails, body_text, body_html,
	sent_at, is_read, is_starred, has_attachments, created_at`

func (s *Store) MessageExists(ctx context.Context, accountID, externalID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM stored_messages WHERE account_id = ? AND external_id = ?", accountID, externalID)
	if err != nil {
		return false, fmt.Errorf("checking message: %w", err)
	}
	return n > 0, nil
}

func (s *Store) CreateMessage(ctx context.Context, message *domain.StoredMessage) error {
	m := *message
	m.SentAt = m.SentAt.UTC()
	m.CreatedAt = m.CreatedAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO stored_messages (`+messageColumns+`) VALUES (
			:id, :user_id, :account_id, :external_id, :folder, :subject,
			:from_email, :to_emails, :cc_emails, :bcc_emails, :body_text, :body_html,
			:sent_at, :is_read, :is_starred, :has_attachments, :created_at)`, m)
	if isUniqueViolation(err) {
		return storage.ErrMessageExists
	}
	if err != nil {
		return fmt.Errorf("creating message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, userID, id string) (*domain.StoredMessage, error) {
	var msg domain.StoredMessage
	err := s.db.GetContext(ctx, &msg,
		"SELECT "+messageColumns+" FROM stored_messages WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (s *Store) ListMessages(ctx context.Context, filter domain.MessageFilter) ([]domain.StoredMessage, error) {
	conditions := []string{"user_id = ?"}
	args := []interface{}{filter.UserID}

	if filter.AccountID != "" {
		conditions = append(conditions, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.Folder != "" {
		conditions = append(conditions, "folder = ?")
		args = append(args, string(filter.Folder))
	}
	if filter.IsRead != nil {
		conditions = append(conditions, "is_read = ?")
		args = append(args, *filter.IsRead)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		conditions = append(conditions,
			"(LOWER(subject) LIKE ? OR LOWER(from_email) LIKE ? OR LOWER(to_emails) LIKE ? OR LOWER(body_text) LIKE ?)")
		like := "%" + strings.ToLower(q) + "%"
		args = append(args, like, like, like, like)
	}

	query := "SELECT " + messageColumns + " FROM stored_messages WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY sent_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	messages := make([]domain.StoredMessage, 0)
	if err := s.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return messages, nil
}

func (s *Store) UpdateMessageFlags(ctx context.Context, userID, id string, flags domain.MessageFlags) (*domain.StoredMessage, error) {
	sets := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)
	if flags.IsRead != nil {
		sets = append(sets, "is_read = ?")
		args = append(args, *flags.IsRead)
	}
	if flags.IsStarred != nil {
		sets = append(sets, "is_starred = ?")
		args = append(args, *flags.IsStarred)
	}

	if len(sets) > 0 {
		args = append(args, id, userID)
		res, err := s.db.ExecContext(ctx,
			"UPDATE stored_messages SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
		if err != nil {
			return nil, fmt.Errorf("updating message flags: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return nil, err
		}
	}
	return s.GetMessage(ctx, userID, id)
}

// ========== Tasks & Notes ==========

func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	t := *task
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		t.DueDate = &due
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tasks (id, user_id, title, description, status, due_date, source_message_id, created_at, updated_at)
		VALUES (:id, :user_id, :title, :description, :status, :due_date, :source_message_id, :created_at, :updated_at)`, t)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	tasks := make([]domain.Task, 0)
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT id, user_id, title, description, status, due_date, source_message_id, created_at, updated_at
		FROM tasks WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) CreateNote(ctx context.Context, note *domain.Note) error {
	n := *note
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notes (id, user_id, note_type, date, job, task_id, title, content, source_message_id, created_at, updated_at)
		VALUES (:id, :user_id, :note_type, :date, :job, :task_id, :title, :content, :source_message_id, :created_at, :updated_at)`, n)
	if err != nil {
		return fmt.Errorf("creating note: %w", err)
	}
	return nil
}

func (s *Store) ListNotes(ctx context.Context, userID string) ([]domain.Note, error) {
	notes := make([]domain.Note, 0)
	err := s.db.SelectContext(ctx, &notes, `
		SELECT id, user_id, note_type, date, job, task_id, title, content, source_message_id, created_at, updated_at
		FROM notes WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return notes, nil
}

func utcUser(u domain.User) domain.User {
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u
}

func utcAccount(a domain.MailboxAccount) domain.MailboxAccount {
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a
}
