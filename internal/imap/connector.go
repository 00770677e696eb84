// Package imap opens authenticated IMAP sessions for mailbox accounts.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"assistant/backend/internal/domain"
)

const defaultDialTimeout = 30 * time.Second

var providerHosts = map[domain.Provider]string{
	domain.ProviderGmail:   "imap.gmail.com",
	domain.ProviderOutlook: "outlook.office365.com",
	domain.ProviderYahoo:   "imap.mail.yahoo.com",
}

// ResolveHost returns the configured server, the provider's well-known
// host, or "imap." followed by the email domain.
func ResolveHost(account *domain.MailboxAccount) string {
	if host := strings.TrimSpace(account.IMAPServer); host != "" {
		return host
	}
	if host, ok := providerHosts[account.Provider]; ok {
		return host
	}
	return "imap." + account.EmailDomain()
}

// ResolvePort returns the configured port or 993.
func ResolvePort(account *domain.MailboxAccount) int {
	if account.IMAPPort > 0 {
		return account.IMAPPort
	}
	return domain.DefaultIMAPPort
}

// Session is an authenticated connection. It must be closed on every path.
type Session interface {
	SelectInbox() error
	// SearchAll returns every UID in the selected mailbox, ascending.
	SearchAll() ([]uint32, error)
	// FetchRaw returns the full RFC 5322 message without setting \Seen.
	FetchRaw(uid uint32) ([]byte, error)
	Close() error
}

// Dialer opens sessions. The importer depends on this rather than on
// Connector so it can run against a fake server.
type Dialer interface {
	Open(ctx context.Context, account *domain.MailboxAccount, secret string) (Session, error)
}

// Option configures a Connector.
type Option func(*Connector)

// WithDialTimeout bounds the TCP connect and TLS handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithTLSConfig overrides the TLS settings; ServerName is still set per
// host when empty.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Connector) {
		c.tlsConfig = cfg
	}
}

// Connector dials real IMAP servers.
type Connector struct {
	dialTimeout time.Duration
	tlsConfig   *tls.Config
	log         *zap.Logger
}

var _ Dialer = (*Connector)(nil)

// NewConnector creates a connector.
func NewConnector(log *zap.Logger, opts ...Option) *Connector {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Connector{dialTimeout: defaultDialTimeout, log: log.Named("imap")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open dials the account's server, logs in and returns the session. The
// connection is torn down when ctx is done.
func (c *Connector) Open(ctx context.Context, account *domain.MailboxAccount, secret string) (Session, error) {
	if secret == "" {
		return nil, &ConfigurationError{Reason: "account has no stored password"}
	}
	host := ResolveHost(account)
	if host == "" || host == "imap." {
		return nil, &ConfigurationError{Reason: "no IMAP server configured"}
	}
	address := net.JoinHostPort(host, strconv.Itoa(ResolvePort(account)))

	tlsConfig := c.tlsFor(host)
	netDialer := &net.Dialer{Timeout: c.dialTimeout}
	options := &imapclient.Options{TLSConfig: tlsConfig, Dialer: netDialer}

	var client *imapclient.Client
	if account.IMAPUseSSL {
		dialer := &tls.Dialer{NetDialer: netDialer, Config: tlsConfig}
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, &ConnectionError{Address: address, Err: err}
		}
		client = imapclient.New(conn, options)
	} else {
		conn, err := netDialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, &ConnectionError{Address: address, Err: err}
		}
		// The STARTTLS exchange itself is bounded by the dial timeout.
		_ = conn.SetDeadline(time.Now().Add(c.dialTimeout))
		client, err = imapclient.NewStartTLS(conn, options)
		if err != nil {
			return nil, &ConnectionError{Address: address, Err: err}
		}
		_ = conn.SetDeadline(time.Time{})
	}

	if err := client.Login(account.LoginName(), secret).Wait(); err != nil {
		_ = client.Close()
		return nil, loginError(address, err)
	}

	c.log.Debug("imap session opened",
		zap.String("address", address),
		zap.String("account_id", account.ID),
	)

	s := &session{client: client, log: c.log}
	s.stop = context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	return s, nil
}

func (c *Connector) tlsFor(host string) *tls.Config {
	if c.tlsConfig == nil {
		return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	cfg := c.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

// loginError maps a rejected LOGIN to AuthenticationError with the
// server's text. Transport failures during login stay ConnectionErrors.
func loginError(address string, err error) error {
	var respErr *goimap.Error
	if !errors.As(err, &respErr) {
		return &ConnectionError{Address: address, Err: err}
	}
	if text := strings.TrimSpace(respErr.Text); text != "" {
		return &AuthenticationError{Reason: text}
	}
	return &AuthenticationError{Reason: err.Error()}
}

type session struct {
	client *imapclient.Client
	log    *zap.Logger
	stop   func() bool

	closeOnce sync.Once
	closeErr  error
}

func (s *session) SelectInbox() error {
	if _, err := s.client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("select INBOX: %w", err)
	}
	return nil
}

func (s *session) SearchAll() ([]uint32, error) {
	data, err := s.client.UIDSearch(&goimap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}
	all := data.AllUIDs()
	uids := make([]uint32, len(all))
	for i, uid := range all {
		uids[i] = uint32(uid)
	}
	return uids, nil
}

func (s *session) FetchRaw(uid uint32) ([]byte, error) {
	section := &goimap.FetchItemBodySection{Peek: true}
	options := &goimap.FetchOptions{
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{section},
	}

	cmd := s.client.Fetch(goimap.UIDSetNum(goimap.UID(uid)), options)
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		if err := cmd.Close(); err != nil {
			return nil, fmt.Errorf("fetch UID %d: %w", uid, err)
		}
		return nil, fmt.Errorf("fetch UID %d: message not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch UID %d: %w", uid, err)
	}
	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("fetch UID %d: empty body", uid)
	}

	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch UID %d: %w", uid, err)
	}
	return raw, nil
}

// Close logs out and closes the connection. Later calls return the first
// result.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		if err := s.client.Logout().Wait(); err != nil {
			s.log.Debug("imap logout failed", zap.Error(err))
		}
		if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.closeErr = err
		}
	})
	return s.closeErr
}
