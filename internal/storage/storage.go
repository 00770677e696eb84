package storage

import (
	"context"
	"errors"
	"time"

	"assistant/backend/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("record not found")
	// ErrMessageExists is returned when (account, external id) is already
	// stored.
	ErrMessageExists = errors.New("message already imported")
	// ErrEmailExists is returned when a user email is already taken.
	ErrEmailExists = errors.New("email already exists")
	// ErrLockHeld is returned by Locker.TryLock when the key is taken.
	ErrLockHeld = errors.New("lock already held")
)

// UserRepository stores users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// AccountRepository stores mailbox accounts. Reads are scoped to a user.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.MailboxAccount) error
	UpdateAccount(ctx context.Context, account *domain.MailboxAccount) error
	GetAccount(ctx context.Context, userID, id string) (*domain.MailboxAccount, error)
	ListAccounts(ctx context.Context, userID string) ([]domain.MailboxAccount, error)
	DeleteAccount(ctx context.Context, userID, id string) error
}

// MessageRepository stores imported messages.
//
// CreateMessage must enforce the (account, external id) uniqueness
// constraint and report a violation as ErrMessageExists.
type MessageRepository interface {
	MessageExists(ctx context.Context, accountID, externalID string) (bool, error)
	CreateMessage(ctx context.Context, message *domain.StoredMessage) error
	GetMessage(ctx context.Context, userID, id string) (*domain.StoredMessage, error)
	ListMessages(ctx context.Context, filter domain.MessageFilter) ([]domain.StoredMessage, error)
	UpdateMessageFlags(ctx context.Context, userID, id string, flags domain.MessageFlags) (*domain.StoredMessage, error)
}

// TaskRepository stores tasks.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
}

// NoteRepository stores notes.
type NoteRepository interface {
	CreateNote(ctx context.Context, note *domain.Note) error
	ListNotes(ctx context.Context, userID string) ([]domain.Note, error)
}

// Store is the full storage collaborator.
type Store interface {
	UserRepository
	AccountRepository
	MessageRepository
	TaskRepository
	NoteRepository

	Health() error
	Close() error
}

// Locker provides short-lived mutual exclusion keyed by string.
//
// TryLock returns ErrLockHeld when another holder owns key. The returned
// release function is safe to call more than once.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
