// Package imaptest runs an in-memory IMAP server on loopback for tests.
package imaptest

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/stretchr/testify/require"
)

// Mode selects how clients secure the connection.
type Mode int

const (
	// ImplicitTLS wraps the listener in TLS, as on port 993.
	ImplicitTLS Mode = iota
	// StartTLS accepts plaintext and upgrades on STARTTLS, as on port 143.
	StartTLS
)

func (m Mode) String() string {
	if m == StartTLS {
		return "starttls"
	}
	return "tls"
}

// Server is a running loopback server with a single user and INBOX.
type Server struct {
	Host     string
	Port     int
	Username string
	Password string

	// ClientTLS trusts the server's self-signed certificate.
	ClientTLS *tls.Config

	user *imapmemserver.User
}

// NewServer starts a server in the given mode. It is stopped via t.Cleanup.
func NewServer(t *testing.T, mode Mode, username, password string) *Server {
	t.Helper()

	cert, pool := selfSignedCert(t)
	serverTLS := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}

	mem := imapmemserver.New()
	user := imapmemserver.NewUser(username, password)
	require.NoError(t, user.Create("INBOX", nil))
	mem.AddUser(user)

	options := &imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		Caps: goimap.CapSet{
			goimap.CapIMAP4rev1: {},
		},
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	if mode == ImplicitTLS {
		ln = tls.NewListener(ln, serverTLS)
	} else {
		options.TLSConfig = serverTLS
	}

	server := imapserver.New(options)
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Close() })

	addr := ln.Addr().(*net.TCPAddr)
	return &Server{
		Host:      "127.0.0.1",
		Port:      addr.Port,
		Username:  username,
		Password:  password,
		ClientTLS: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		user:      user,
	}
}

// Deliver appends a raw RFC 5322 message to INBOX.
func (s *Server) Deliver(t *testing.T, raw string) {
	t.Helper()
	_, err := s.user.Append("INBOX", bytes.NewReader([]byte(raw)), &goimap.AppendOptions{})
	require.NoError(t, err)
}

func selfSignedCert(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "imaptest"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, pool
}
