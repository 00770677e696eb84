package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"assistant/backend/internal/config"
	"assistant/backend/internal/domain"
	"assistant/backend/internal/extraction"
	"assistant/backend/internal/imap"
	"assistant/backend/internal/importer"
	"assistant/backend/internal/monitoring"
	"assistant/backend/internal/secret"
	"assistant/backend/internal/storage"
	"assistant/backend/internal/storage/memory"
)

const testSecretKey = "0123456789abcdef-test-key"

// MockImporter records Import calls.
type MockImporter struct {
	mock.Mock
}

func (m *MockImporter) Import(ctx context.Context, account *domain.MailboxAccount, secret string, limit int) (importer.Report, error) {
	args := m.Called(ctx, account, secret, limit)
	return args.Get(0).(importer.Report), args.Error(1)
}

// MockAnalyzer records Analyze calls.
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, msg *domain.StoredMessage) (*extraction.Outcome, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extraction.Outcome), args.Error(1)
}

type mailFixture struct {
	store    *memory.Store
	locker   *memory.Locker
	importer *MockImporter
	analyzer *MockAnalyzer
	metrics  *monitoring.Metrics
	service  *MailService
	accounts *AccountService
}

func newMailFixture(t *testing.T) *mailFixture {
	t.Helper()
	sealer, err := secret.NewSealer(testSecretKey)
	require.NoError(t, err)

	f := &mailFixture{
		store:    memory.NewStore(),
		locker:   memory.NewLocker(),
		importer: &MockImporter{},
		analyzer: &MockAnalyzer{},
		metrics:  monitoring.NewMetrics(),
	}
	f.accounts = NewAccountService(f.store, sealer, zap.NewNop())
	f.service = NewMailService(MailServiceDeps{
		Accounts: f.store,
		Messages: f.store,
		Importer: f.importer,
		Analyzer: f.analyzer,
		Locker:   f.locker,
		Sealer:   sealer,
		Config: config.MailConfig{
			SyncLimit:    50,
			MaxSyncLimit: 500,
			SyncTimeout:  time.Minute,
			LockTTL:      time.Minute,
		},
		Metrics: f.metrics,
		Logger:  zap.NewNop(),
	})
	return f
}

func (f *mailFixture) createAccount(t *testing.T, userID string) *domain.MailboxAccount {
	t.Helper()
	account, err := f.accounts.Create(context.Background(), userID, CreateAccountInput{
		Label:        "Work",
		Provider:     domain.ProviderGmail,
		EmailAddress: "me@gmail.com",
		Password:     "app-password",
	})
	require.NoError(t, err)
	return account
}

func TestMailService_Sync(t *testing.T) {
	f := newMailFixture(t)
	account := f.createAccount(t, "user-1")

	f.importer.On("Import", mock.Anything, mock.MatchedBy(func(a *domain.MailboxAccount) bool {
		return a.ID == account.ID
	}), "app-password", 50).Return(importer.Report{Imported: 3, Skipped: 2}, nil).Once()

	result, err := f.service.Sync(context.Background(), "user-1", account.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)

	f.importer.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SyncRunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.MessagesImported))

	// The lock is released afterwards.
	release, err := f.locker.TryLock(context.Background(), SyncLockKey(account.ID), time.Minute)
	require.NoError(t, err)
	release()
}

func TestMailService_Sync_LimitIsCapped(t *testing.T) {
	f := newMailFixture(t)
	account := f.createAccount(t, "user-1")

	f.importer.On("Import", mock.Anything, mock.Anything, mock.Anything, 500).
		Return(importer.Report{}, nil).Once()

	_, err := f.service.Sync(context.Background(), "user-1", account.ID, 10000)
	require.NoError(t, err)
	f.importer.AssertExpectations(t)
}

func TestMailService_Sync_OtherUsersAccount(t *testing.T) {
	f := newMailFixture(t)
	account := f.createAccount(t, "user-1")

	_, err := f.service.Sync(context.Background(), "user-2", account.ID, 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	f.importer.AssertNotCalled(t, "Import", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMailService_Sync_InProgress(t *testing.T) {
	f := newMailFixture(t)
	account := f.createAccount(t, "user-1")

	release, err := f.locker.TryLock(context.Background(), SyncLockKey(account.ID), time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = f.service.Sync(context.Background(), "user-1", account.ID, 0)
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestMailService_Sync_ErrorsPropagate(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{"auth", &imap.AuthenticationError{Reason: "Invalid credentials"}, "auth"},
		{"mailbox", &importer.SyncError{Op: "select", Err: errors.New("NO")}, "mailbox"},
		{"connection", &imap.ConnectionError{Address: "imap.gmail.com:993", Err: errors.New("refused")}, "connection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMailFixture(t)
			account := f.createAccount(t, "user-1")
			f.importer.On("Import", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(importer.Report{}, tt.err).Once()

			_, err := f.service.Sync(context.Background(), "user-1", account.ID, 0)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SyncRunsTotal.WithLabelValues(tt.outcome)))
		})
	}
}

func TestMailService_Sync_SurvivesCallerCancel(t *testing.T) {
	f := newMailFixture(t)
	account := f.createAccount(t, "user-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.importer.On("Import", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything, mock.Anything, mock.Anything).Return(importer.Report{Imported: 1}, nil).Once()

	result, err := f.service.Sync(ctx, "user-1", account.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
}

func TestMailService_Sync_UnreadableSecret(t *testing.T) {
	f := newMailFixture(t)
	account := f.createAccount(t, "user-1")
	account.Secret = "v1:not-valid"
	require.NoError(t, f.store.UpdateAccount(context.Background(), account))

	_, err := f.service.Sync(context.Background(), "user-1", account.ID, 0)
	var cfgErr *imap.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestMailService_Analyze(t *testing.T) {
	f := newMailFixture(t)
	msg := &domain.StoredMessage{
		ID:         "msg-1",
		UserID:     "user-1",
		AccountID:  "acct-1",
		ExternalID: "UID:1",
		Subject:    "Renew lease",
		SentAt:     time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateMessage(context.Background(), msg))

	f.analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(m *domain.StoredMessage) bool {
		return m.ID == "msg-1"
	})).Return(&extraction.Outcome{
		Tasks:     []domain.Task{{ID: "t1", Title: "Follow up: Renew lease"}},
		Notes:     []domain.Note{},
		Generator: "heuristic",
	}, nil).Once()

	result, err := f.service.Analyze(context.Background(), "user-1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "heuristic", result.Generator)
	assert.Len(t, result.CreatedTasks, 1)
	assert.Empty(t, result.CreatedNotes)

	_, err = f.service.Analyze(context.Background(), "user-2", "msg-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMailService_Analyze_Failure(t *testing.T) {
	f := newMailFixture(t)
	msg := &domain.StoredMessage{ID: "msg-1", UserID: "user-1", AccountID: "a", ExternalID: "UID:1"}
	require.NoError(t, f.store.CreateMessage(context.Background(), msg))

	f.analyzer.On("Analyze", mock.Anything, mock.Anything).Return(nil, extraction.ErrNoGenerator).Once()

	_, err := f.service.Analyze(context.Background(), "user-1", "msg-1")
	assert.ErrorIs(t, err, extraction.ErrNoGenerator)
}
