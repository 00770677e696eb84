package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/storage"
)

// Store keeps everything in process memory. It backs development runs and
// tests; data is lost on restart.
type Store struct {
	mu         sync.RWMutex
	users      map[string]*domain.User           // userID -> user
	byEmail    map[string]string                 // lower(email) -> userID
	accounts   map[string]*domain.MailboxAccount // accountID -> account
	messages   map[string]*domain.StoredMessage  // messageID -> message
	byExternal map[string]string                 // accountID + "\x00" + externalID -> messageID
	tasks      map[string]*domain.Task
	notes      map[string]*domain.Note
}

var _ storage.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:      make(map[string]*domain.User),
		byEmail:    make(map[string]string),
		accounts:   make(map[string]*domain.MailboxAccount),
		messages:   make(map[string]*domain.StoredMessage),
		byExternal: make(map[string]string),
		tasks:      make(map[string]*domain.Task),
		notes:      make(map[string]*domain.Note),
	}
}

func externalKey(accountID, externalID string) string {
	return accountID + "\x00" + externalID
}

// ========== Users ==========

// CreateUser stores a new user; emails are unique case-insensitively.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := s.byEmail[key]; ok {
		return storage.ErrEmailExists
	}
	copied := *user
	s.users[user.ID] = &copied
	s.byEmail[key] = user.ID
	return nil
}

// GetUserByID returns a user by id.
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUserByEmail returns a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

// ========== Accounts ==========

// CreateAccount stores a new account.
func (s *Store) CreateAccount(_ context.Context, account *domain.MailboxAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *account
	s.accounts[account.ID] = &copied
	return nil
}

// UpdateAccount replaces an existing account owned by account.UserID.
func (s *Store) UpdateAccount(_ context.Context, account *domain.MailboxAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.accounts[account.ID]
	if !ok || existing.UserID != account.UserID {
		return storage.ErrNotFound
	}
	copied := *account
	s.accounts[account.ID] = &copied
	return nil
}

// GetAccount returns one of the user's accounts.
func (s *Store) GetAccount(_ context.Context, userID, id string) (*domain.MailboxAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok || account.UserID != userID {
		return nil, storage.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

// ListAccounts returns the user's accounts ordered by label.
func (s *Store) ListAccounts(_ context.Context, userID string) ([]domain.MailboxAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.MailboxAccount, 0)
	for _, account := range s.accounts {
		if account.UserID == userID {
			result = append(result, *account)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Label == result[j].Label {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Label < result[j].Label
	})
	return result, nil
}

// DeleteAccount removes an account and every message imported through it.
func (s *Store) DeleteAccount(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok || account.UserID != userID {
		return storage.ErrNotFound
	}
	for msgID, msg := range s.messages {
		if msg.AccountID == id {
			delete(s.byExternal, externalKey(msg.AccountID, msg.ExternalID))
			delete(s.messages, msgID)
		}
	}
	delete(s.accounts, id)
	return nil
}

// ========== Messages ==========

// MessageExists reports whether (accountID, externalID) is already stored.
func (s *Store) MessageExists(_ context.Context, accountID, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byExternal[externalKey(accountID, externalID)]
	return ok, nil
}

// CreateMessage inserts a message, or returns storage.ErrMessageExists when
// the account already holds the external id.
func (s *Store) CreateMessage(_ context.Context, message *domain.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := externalKey(message.AccountID, message.ExternalID)
	if _, ok := s.byExternal[key]; ok {
		return storage.ErrMessageExists
	}
	copied := *message
	s.messages[message.ID] = &copied
	s.byExternal[key] = message.ID
	return nil
}

// GetMessage returns one of the user's messages.
func (s *Store) GetMessage(_ context.Context, userID, id string) (*domain.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok || msg.UserID != userID {
		return nil, storage.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

// ListMessages returns the user's messages matching filter, newest first.
func (s *Store) ListMessages(_ context.Context, filter domain.MessageFilter) ([]domain.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	result := make([]domain.StoredMessage, 0)
	for _, msg := range s.messages {
		if !matchesFilter(msg, filter, query) {
			continue
		}
		result = append(result, *msg)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SentAt.After(result[j].SentAt)
	})

	return paginate(result, filter.Offset, filter.Limit), nil
}

func matchesFilter(msg *domain.StoredMessage, filter domain.MessageFilter, query string) bool {
	if msg.UserID != filter.UserID {
		return false
	}
	if filter.AccountID != "" && msg.AccountID != filter.AccountID {
		return false
	}
	if filter.Folder != "" && msg.Folder != filter.Folder {
		return false
	}
	if filter.IsRead != nil && msg.IsRead != *filter.IsRead {
		return false
	}
	if query == "" {
		return true
	}
	for _, field := range []string{msg.Subject, msg.FromEmail, msg.ToEmails, msg.BodyText} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// UpdateMessageFlags applies the non-nil flags and returns the result.
func (s *Store) UpdateMessageFlags(_ context.Context, userID, id string, flags domain.MessageFlags) (*domain.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.UserID != userID {
		return nil, storage.ErrNotFound
	}
	if flags.IsRead != nil {
		msg.IsRead = *flags.IsRead
	}
	if flags.IsStarred != nil {
		msg.IsStarred = *flags.IsStarred
	}
	copied := *msg
	return &copied, nil
}

// ========== Tasks & Notes ==========

// CreateTask stores a task.
func (s *Store) CreateTask(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

// ListTasks returns the user's tasks, newest first.
func (s *Store) ListTasks(_ context.Context, userID string) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Task, 0)
	for _, task := range s.tasks {
		if task.UserID == userID {
			result = append(result, *task)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// CreateNote stores a note.
func (s *Store) CreateNote(_ context.Context, note *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *note
	s.notes[note.ID] = &copied
	return nil
}

// ListNotes returns the user's notes, newest first.
func (s *Store) ListNotes(_ context.Context, userID string) ([]domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Note, 0)
	for _, note := range s.notes {
		if note.UserID == userID {
			result = append(result, *note)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Health always succeeds for the memory store.
func (s *Store) Health() error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// ========== Locks ==========

// Locker is an in-process storage.Locker. Entries expire after their TTL
// so a crashed holder cannot block a key forever.
type Locker struct {
	mu    sync.Mutex
	held  map[string]lockEntry
	now   func() time.Time
	nextN uint64
}

type lockEntry struct {
	token     uint64
	expiresAt time.Time
}

var _ storage.Locker = (*Locker)(nil)

// NewLocker creates an empty in-process locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]lockEntry), now: time.Now}
}

// TryLock acquires key for ttl or returns storage.ErrLockHeld.
func (l *Locker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return nil, storage.ErrLockHeld
	}

	l.nextN++
	token := l.nextN
	l.held[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if entry, ok := l.held[key]; ok && entry.token == token {
				delete(l.held, key)
			}
		})
	}, nil
}
