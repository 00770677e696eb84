// Package importer copies new messages from a remote INBOX into storage.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/imap"
	"assistant/backend/internal/mailparse"
	"assistant/backend/internal/storage"
)

// DefaultLimit is used when Import is called with limit <= 0.
const DefaultLimit = 100

// SyncError reports a mailbox-level IMAP failure after login.
type SyncError struct {
	Op  string // "select" or "search"
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("mailbox %s failed: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// MessageStore is the storage the importer writes to.
type MessageStore interface {
	MessageExists(ctx context.Context, accountID, externalID string) (bool, error)
	CreateMessage(ctx context.Context, message *domain.StoredMessage) error
}

// Report counts what one import run did with each UID it looked at.
type Report struct {
	Imported int
	Skipped  int // already stored
	Failed   int // fetch, parse or storage errors
}

// Importer pulls messages through a Dialer and stores them.
type Importer struct {
	dialer imap.Dialer
	store  MessageStore
	parser *mailparse.Parser
	log    *zap.Logger
	now    func() time.Time
}

// New creates an importer.
func New(dialer imap.Dialer, store MessageStore, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{
		dialer: dialer,
		store:  store,
		parser: mailparse.New(log),
		log:    log.Named("importer"),
		now:    time.Now,
	}
}

// ExternalID is the stored identifier of a remote message.
func ExternalID(uid uint32) string {
	return "UID:" + strconv.FormatUint(uint64(uid), 10)
}

// Import stores up to limit of the newest INBOX messages that are not yet
// stored for account. Per-message failures are logged and skipped; only
// connection, login, select and search failures abort the run.
func (im *Importer) Import(ctx context.Context, account *domain.MailboxAccount, secret string, limit int) (Report, error) {
	var report Report

	if !account.IsActive {
		im.log.Info("account inactive, skipping sync", zap.String("account_id", account.ID))
		return report, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	session, err := im.dialer.Open(ctx, account, secret)
	if err != nil {
		return report, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			im.log.Debug("closing imap session", zap.Error(err))
		}
	}()

	if err := session.SelectInbox(); err != nil {
		return report, &SyncError{Op: "select", Err: err}
	}

	uids, err := session.SearchAll()
	if err != nil {
		return report, &SyncError{Op: "search", Err: err}
	}
	if len(uids) == 0 {
		im.log.Info("no messages found", zap.String("account_id", account.ID))
		return report, nil
	}
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	im.log.Info("starting import",
		zap.String("account_id", account.ID),
		zap.Int("candidates", len(uids)),
		zap.Int("limit", limit),
	)

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		im.importOne(ctx, session, account, uid, &report)
	}

	im.log.Info("import finished",
		zap.String("account_id", account.ID),
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (im *Importer) importOne(ctx context.Context, session imap.Session, account *domain.MailboxAccount, uid uint32, report *Report) {
	externalID := ExternalID(uid)
	log := im.log.With(zap.String("account_id", account.ID), zap.String("external_id", externalID))

	exists, err := im.store.MessageExists(ctx, account.ID, externalID)
	if err != nil {
		log.Warn("existence check failed", zap.Error(err))
		report.Failed++
		return
	}
	if exists {
		report.Skipped++
		return
	}

	raw, err := session.FetchRaw(uid)
	if err != nil {
		log.Warn("failed to fetch message", zap.Error(err))
		report.Failed++
		return
	}

	parsed, err := im.parser.Parse(raw)
	if err != nil {
		log.Warn("failed to parse message", zap.Error(err))
		report.Failed++
		return
	}

	message := &domain.StoredMessage{
		ID:             uuid.New().String(),
		UserID:         account.UserID,
		AccountID:      account.ID,
		ExternalID:     externalID,
		Folder:         domain.FolderInbox,
		Subject:        domain.Truncate(parsed.Subject, domain.MaxSubjectLength),
		FromEmail:      domain.Truncate(parsed.From, domain.MaxFromLength),
		ToEmails:       parsed.To,
		CcEmails:       parsed.Cc,
		BccEmails:      parsed.Bcc,
		BodyText:       parsed.BodyText,
		BodyHTML:       parsed.BodyHTML,
		SentAt:         parsed.SentAt,
		IsRead:         true,
		IsStarred:      false,
		HasAttachments: parsed.HasAttachments,
		CreatedAt:      im.now().UTC(),
	}

	if err := im.store.CreateMessage(ctx, message); err != nil {
		if errors.Is(err, storage.ErrMessageExists) {
			// Another sync stored it between the check and the insert.
			report.Skipped++
			return
		}
		log.Warn("failed to store message", zap.Error(err))
		report.Failed++
		return
	}

	log.Debug("message imported", zap.String("message_id", message.ID))
	report.Imported++
}
