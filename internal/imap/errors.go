package imap

import "fmt"

// ConfigurationError reports an account that cannot be used to connect,
// e.g. one without a stored secret. No network traffic happened.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "mailbox configuration error: " + e.Reason
}

// AuthenticationError reports a login the server rejected. Reason is the
// server's text and never contains the credential.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "mailbox authentication failed: " + e.Reason
}

// ConnectionError reports a failed dial or TLS handshake.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
