package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrIDRequired       = errors.New("id is required")
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrInvalidDomain    = errors.New("invalid domain format")
	ErrLabelRequired    = errors.New("label is required")
	ErrLabelTooLong     = errors.New("label too long (max 128 chars)")
	ErrInvalidProvider  = errors.New("invalid provider")
	ErrInvalidPort      = errors.New("port must be between 0 and 65535")
	ErrInvalidFolder    = errors.New("invalid folder")
	ErrTitleRequired    = errors.New("title is required")
	ErrInvalidTaskState = errors.New("invalid task status")
)

// Field limits shared by every storage backend.
const (
	MaxEmailLength      = 254
	MaxDomainLength     = 253
	MaxLabelLength      = 128
	MaxSubjectLength    = 998
	MaxFromLength       = 512
	MaxExternalIDLength = 255
	MaxTitleLength      = 255
	MaxJobLength        = 100
)

var domainRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// ValidateEmailAddress checks a bare address such as "me@example.com".
func ValidateEmailAddress(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email || parsed.Name != "" {
		return ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ErrInvalidEmail
	}
	return ValidateDomain(email[at+1:])
}

// ValidateDomain checks a host name with at least two labels.
func ValidateDomain(domain string) error {
	if domain == "" || len(domain) > MaxDomainLength {
		return ErrInvalidDomain
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

// ParseFolder converts user input into a Folder. Matching is
// case-insensitive so "INBOX" and "inbox" are the same folder.
func ParseFolder(value string) (Folder, error) {
	f := Folder(strings.ToLower(strings.TrimSpace(value)))
	if !f.Valid() {
		return "", ErrInvalidFolder
	}
	return f, nil
}

// Truncate cuts s to at most max characters (runes, not bytes).
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
