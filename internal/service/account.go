package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/secret"
	"assistant/backend/internal/storage"
)

// AccountService manages a user's mailbox accounts. Passwords are sealed
// before they are stored and are never returned.
type AccountService struct {
	repo   storage.AccountRepository
	sealer *secret.Sealer
	log    *zap.Logger
}

// NewAccountService creates the account service.
func NewAccountService(repo storage.AccountRepository, sealer *secret.Sealer, log *zap.Logger) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{repo: repo, sealer: sealer, log: log.Named("accounts")}
}

// CreateAccountInput carries the fields of a new account. Nil pointers
// take their defaults.
type CreateAccountInput struct {
	Label        string
	Provider     domain.Provider
	EmailAddress string
	IMAPServer   string
	IMAPPort     *int
	IMAPUseSSL   *bool
	SMTPServer   string
	SMTPPort     *int
	SMTPUseTLS   *bool
	Username     string
	Password     string
	IsActive     *bool
}

// UpdateAccountInput changes only the non-nil fields. A non-nil empty
// Password clears the stored secret.
type UpdateAccountInput struct {
	Label        *string
	Provider     *domain.Provider
	EmailAddress *string
	IMAPServer   *string
	IMAPPort     *int
	IMAPUseSSL   *bool
	SMTPServer   *string
	SMTPPort     *int
	SMTPUseTLS   *bool
	Username     *string
	Password     *string
	IsActive     *bool
}

// Create validates and stores a new account.
func (s *AccountService) Create(ctx context.Context, userID string, input CreateAccountInput) (*domain.MailboxAccount, error) {
	provider := input.Provider
	if provider == "" {
		provider = domain.ProviderIMAP
	}

	now := time.Now().UTC()
	account := &domain.MailboxAccount{
		ID:           uuid.NewString(),
		UserID:       userID,
		Label:        strings.TrimSpace(input.Label),
		Provider:     provider,
		EmailAddress: strings.TrimSpace(input.EmailAddress),
		IMAPServer:   strings.TrimSpace(input.IMAPServer),
		IMAPPort:     intOr(input.IMAPPort, domain.DefaultIMAPPort),
		IMAPUseSSL:   boolOr(input.IMAPUseSSL, true),
		SMTPServer:   strings.TrimSpace(input.SMTPServer),
		SMTPPort:     intOr(input.SMTPPort, domain.DefaultSMTPPort),
		SMTPUseTLS:   boolOr(input.SMTPUseTLS, true),
		Username:     strings.TrimSpace(input.Username),
		IsActive:     boolOr(input.IsActive, true),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := account.Validate(); err != nil {
		return nil, invalid(err)
	}

	sealed, err := s.sealer.Seal(input.Password)
	if err != nil {
		return nil, fmt.Errorf("seal password: %w", err)
	}
	account.Secret = sealed

	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.log.Info("account created",
		zap.String("user_id", userID),
		zap.String("account_id", account.ID),
		zap.String("provider", string(account.Provider)),
	)
	return account, nil
}

// Get returns one of the user's accounts.
func (s *AccountService) Get(ctx context.Context, userID, id string) (*domain.MailboxAccount, error) {
	return s.repo.GetAccount(ctx, userID, id)
}

// List returns the user's accounts ordered by label.
func (s *AccountService) List(ctx context.Context, userID string) ([]domain.MailboxAccount, error) {
	return s.repo.ListAccounts(ctx, userID)
}

// Update applies a partial update.
func (s *AccountService) Update(ctx context.Context, userID, id string, input UpdateAccountInput) (*domain.MailboxAccount, error) {
	account, err := s.repo.GetAccount(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if input.Label != nil {
		account.Label = strings.TrimSpace(*input.Label)
	}
	if input.Provider != nil {
		account.Provider = *input.Provider
	}
	if input.EmailAddress != nil {
		account.EmailAddress = strings.TrimSpace(*input.EmailAddress)
	}
	if input.IMAPServer != nil {
		account.IMAPServer = strings.TrimSpace(*input.IMAPServer)
	}
	if input.IMAPPort != nil {
		account.IMAPPort = *input.IMAPPort
	}
	if input.IMAPUseSSL != nil {
		account.IMAPUseSSL = *input.IMAPUseSSL
	}
	if input.SMTPServer != nil {
		account.SMTPServer = strings.TrimSpace(*input.SMTPServer)
	}
	if input.SMTPPort != nil {
		account.SMTPPort = *input.SMTPPort
	}
	if input.SMTPUseTLS != nil {
		account.SMTPUseTLS = *input.SMTPUseTLS
	}
	if input.Username != nil {
		account.Username = strings.TrimSpace(*input.Username)
	}
	if input.IsActive != nil {
		account.IsActive = *input.IsActive
	}
	if err := account.Validate(); err != nil {
		return nil, invalid(err)
	}

	if input.Password != nil {
		sealed, err := s.sealer.Seal(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("seal password: %w", err)
		}
		account.Secret = sealed
	}
	account.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	s.log.Info("account updated", zap.String("user_id", userID), zap.String("account_id", id))
	return account, nil
}

// Delete removes the account and its stored messages.
func (s *AccountService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteAccount(ctx, userID, id); err != nil {
		return err
	}
	s.log.Info("account deleted", zap.String("user_id", userID), zap.String("account_id", id))
	return nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
