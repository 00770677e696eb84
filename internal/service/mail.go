package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"assistant/backend/internal/config"
	"assistant/backend/internal/domain"
	"assistant/backend/internal/extraction"
	"assistant/backend/internal/imap"
	"assistant/backend/internal/importer"
	"assistant/backend/internal/monitoring"
	"assistant/backend/internal/secret"
	"assistant/backend/internal/storage"
)

// MessageImporter pulls new mail for one account.
type MessageImporter interface {
	Import(ctx context.Context, account *domain.MailboxAccount, secret string, limit int) (importer.Report, error)
}

// MessageAnalyzer turns one message into tasks and notes.
type MessageAnalyzer interface {
	Analyze(ctx context.Context, msg *domain.StoredMessage) (*extraction.Outcome, error)
}

// SyncResult is returned by a finished sync.
type SyncResult struct {
	Imported int `json:"imported"`
}

// AnalyzeResult is returned by a finished analysis.
type AnalyzeResult struct {
	CreatedTasks []domain.Task `json:"created_tasks"`
	CreatedNotes []domain.Note `json:"created_notes"`
	Generator    string        `json:"generator"`
}

// MailService runs the email-to-action pipeline: sync then analyze.
type MailService struct {
	accounts storage.AccountRepository
	messages storage.MessageRepository
	importer MessageImporter
	analyzer MessageAnalyzer
	locker   storage.Locker
	sealer   *secret.Sealer
	cfg      config.MailConfig
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// MailServiceDeps groups MailService collaborators.
type MailServiceDeps struct {
	Accounts storage.AccountRepository
	Messages storage.MessageRepository
	Importer MessageImporter
	Analyzer MessageAnalyzer
	Locker   storage.Locker
	Sealer   *secret.Sealer
	Config   config.MailConfig
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
}

// NewMailService creates the pipeline service.
func NewMailService(deps MailServiceDeps) *MailService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &MailService{
		accounts: deps.Accounts,
		messages: deps.Messages,
		importer: deps.Importer,
		analyzer: deps.Analyzer,
		locker:   deps.Locker,
		sealer:   deps.Sealer,
		cfg:      deps.Config,
		metrics:  deps.Metrics,
		log:      log.Named("mail"),
	}
}

// SyncLockKey is the lock taken while an account syncs.
func SyncLockKey(accountID string) string {
	return "sync:" + accountID
}

// Sync imports up to limit new INBOX messages for one of the user's
// accounts. limit <= 0 uses the configured default; larger values are
// capped at the configured maximum.
//
// The import keeps running if the caller goes away; only the configured
// sync timeout stops it.
func (s *MailService) Sync(ctx context.Context, userID, accountID string, limit int) (*SyncResult, error) {
	account, err := s.accounts.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = s.cfg.SyncLimit
	case s.cfg.MaxSyncLimit > 0 && limit > s.cfg.MaxSyncLimit:
		limit = s.cfg.MaxSyncLimit
	}

	password, err := s.unseal(account)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.TryLock(ctx, SyncLockKey(account.ID), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, storage.ErrLockHeld) {
			return nil, ErrSyncInProgress
		}
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	defer release()

	runCtx := context.WithoutCancel(ctx)
	if s.cfg.SyncTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.cfg.SyncTimeout)
		defer cancel()
	}

	s.log.Info("sync started",
		zap.String("user_id", userID),
		zap.String("account_id", account.ID),
		zap.String("provider", string(account.Provider)),
		zap.Int("limit", limit),
	)

	started := time.Now()
	report, err := s.importer.Import(runCtx, account, password, limit)
	outcome := syncOutcome(err)
	s.metrics.RecordSync(outcome, time.Since(started), report.Imported, report.Skipped, report.Failed)

	if err != nil {
		s.log.Warn("sync failed",
			zap.String("account_id", account.ID),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("sync finished",
		zap.String("account_id", account.ID),
		zap.Int("imported", report.Imported),
		zap.Duration("took", time.Since(started)),
	)
	return &SyncResult{Imported: report.Imported}, nil
}

// Analyze extracts tasks and notes from one of the user's messages.
func (s *MailService) Analyze(ctx context.Context, userID, messageID string) (*AnalyzeResult, error) {
	msg, err := s.messages.GetMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	// Materialization writes several rows; finish it even if the client
	// disconnects.
	outcome, err := s.analyzer.Analyze(context.WithoutCancel(ctx), msg)
	if err != nil {
		s.metrics.RecordError("extraction", "mail")
		return nil, fmt.Errorf("analyze message %s: %w", messageID, err)
	}

	return &AnalyzeResult{
		CreatedTasks: outcome.Tasks,
		CreatedNotes: outcome.Notes,
		Generator:    outcome.Generator,
	}, nil
}

func (s *MailService) unseal(account *domain.MailboxAccount) (string, error) {
	if !account.HasSecret() {
		return "", nil
	}
	password, err := s.sealer.Open(account.Secret)
	if err != nil {
		s.log.Error("stored password cannot be opened",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
		return "", &imap.ConfigurationError{Reason: "stored password cannot be decrypted; set it again"}
	}
	return password, nil
}

// syncOutcome labels a sync result for metrics.
func syncOutcome(err error) string {
	var (
		cfgErr  *imap.ConfigurationError
		authErr *imap.AuthenticationError
		connErr *imap.ConnectionError
		syncErr *importer.SyncError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &cfgErr):
		return "config"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &syncErr):
		return "mailbox"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
