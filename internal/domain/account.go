package domain

import (
	"strings"
	"time"
)

// Provider identifies a mailbox provider preset.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderYahoo   Provider = "yahoo"
	ProviderIMAP    Provider = "imap" // generic IMAP server
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGmail, ProviderOutlook, ProviderYahoo, ProviderIMAP:
		return true
	}
	return false
}

const (
	DefaultIMAPPort = 993
	DefaultSMTPPort = 587
)

// MailboxAccount is one user's remote mailbox configuration.
//
// Secret holds the sealed password or app password. It never leaves the
// server: it is excluded from JSON and only its presence is reported.
type MailboxAccount struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)" db:"id"`
	UserID       string    `json:"userId" gorm:"type:varchar(36);index;not null" db:"user_id"`
	Label        string    `json:"label" gorm:"type:varchar(128);not null" db:"label"`
	Provider     Provider  `json:"provider" gorm:"type:varchar(32);default:'imap'" db:"provider"`
	EmailAddress string    `json:"emailAddress" gorm:"type:varchar(254);not null" db:"email_address"`
	IMAPServer   string    `json:"imapServer" gorm:"column:imap_server;type:varchar(255)" db:"imap_server"`
	IMAPPort     int       `json:"imapPort" gorm:"column:imap_port;default:993" db:"imap_port"`
	IMAPUseSSL   bool      `json:"imapUseSsl" gorm:"column:imap_use_ssl;not null" db:"imap_use_ssl"`
	SMTPServer   string    `json:"smtpServer" gorm:"column:smtp_server;type:varchar(255)" db:"smtp_server"`
	SMTPPort     int       `json:"smtpPort" gorm:"column:smtp_port;default:587" db:"smtp_port"`
	SMTPUseTLS   bool      `json:"smtpUseTls" gorm:"column:smtp_use_tls;not null" db:"smtp_use_tls"`
	Username     string    `json:"username" gorm:"type:varchar(255)" db:"username"`
	Secret       string    `json:"-" gorm:"type:text" db:"secret"`
	IsActive     bool      `json:"isActive" gorm:"not null" db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// HasSecret reports whether a credential has been stored.
func (a *MailboxAccount) HasSecret() bool {
	return a.Secret != ""
}

// LoginName is the IMAP login: the username when set, otherwise the
// email address.
func (a *MailboxAccount) LoginName() string {
	if u := strings.TrimSpace(a.Username); u != "" {
		return u
	}
	return a.EmailAddress
}

// EmailDomain returns the part of the email address after the last "@".
func (a *MailboxAccount) EmailDomain() string {
	addr := a.EmailAddress
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return addr
}

// Validate checks an account before it is stored.
func (a *MailboxAccount) Validate() error {
	if strings.TrimSpace(a.Label) == "" {
		return ErrLabelRequired
	}
	if len([]rune(a.Label)) > MaxLabelLength {
		return ErrLabelTooLong
	}
	if !a.Provider.Valid() {
		return ErrInvalidProvider
	}
	if err := ValidateEmailAddress(a.EmailAddress); err != nil {
		return err
	}
	if a.IMAPPort < 0 || a.IMAPPort > 65535 || a.SMTPPort < 0 || a.SMTPPort > 65535 {
		return ErrInvalidPort
	}
	return nil
}
