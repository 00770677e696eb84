package domain

import "time"

// Folder is the local folder tag of a stored message.
type Folder string

const (
	FolderInbox   Folder = "inbox"
	FolderSent    Folder = "sent"
	FolderDrafts  Folder = "drafts"
	FolderArchive Folder = "archive"
	FolderTrash   Folder = "trash"
	FolderOther   Folder = "other"
)

// Valid reports whether f is a known folder.
func (f Folder) Valid() bool {
	switch f {
	case FolderInbox, FolderSent, FolderDrafts, FolderArchive, FolderTrash, FolderOther:
		return true
	}
	return false
}

// StoredMessage is a normalized email imported from a remote mailbox.
// (AccountID, ExternalID) is unique.
type StoredMessage struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)" db:"id"`
	UserID         string    `json:"userId" gorm:"type:varchar(36);not null;index:idx_message_user_sent,priority:1" db:"user_id"`
	AccountID      string    `json:"accountId" gorm:"type:varchar(36);not null;uniqueIndex:idx_message_account_external,priority:1" db:"account_id"`
	ExternalID     string    `json:"externalId" gorm:"type:varchar(255);not null;uniqueIndex:idx_message_account_external,priority:2" db:"external_id"`
	Folder         Folder    `json:"folder" gorm:"type:varchar(32);default:'inbox';index" db:"folder"`
	Subject        string    `json:"subject" gorm:"type:varchar(998)" db:"subject"`
	FromEmail      string    `json:"from" gorm:"column:from_email;type:varchar(512)" db:"from_email"`
	ToEmails       string    `json:"to" gorm:"column:to_emails;type:text" db:"to_emails"`
	CcEmails       string    `json:"cc" gorm:"column:cc_emails;type:text" db:"cc_emails"`
	BccEmails      string    `json:"bcc" gorm:"column:bcc_emails;type:text" db:"bcc_emails"`
	BodyText       string    `json:"bodyText" gorm:"column:body_text;type:text" db:"body_text"`
	BodyHTML       string    `json:"bodyHtml" gorm:"column:body_html;type:text" db:"body_html"`
	SentAt         time.Time `json:"sentAt" gorm:"not null;index:idx_message_user_sent,priority:2" db:"sent_at"`
	IsRead         bool      `json:"isRead" gorm:"default:false;index" db:"is_read"`
	IsStarred      bool      `json:"isStarred" gorm:"default:false" db:"is_starred"`
	HasAttachments bool      `json:"hasAttachments" gorm:"default:false" db:"has_attachments"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// Body returns the plain text body, or the HTML body when there is no
// plain text.
func (m *StoredMessage) Body() string {
	if m.BodyText != "" {
		return m.BodyText
	}
	return m.BodyHTML
}

// MessageFilter narrows a message listing. UserID is mandatory.
type MessageFilter struct {
	UserID    string
	AccountID string
	Folder    Folder
	IsRead    *bool
	Query     string // case-insensitive match on subject, from, to and plain body
	Limit     int
	Offset    int
}

// MessageFlags carries optional flag changes.
type MessageFlags struct {
	IsRead    *bool `json:"isRead"`
	IsStarred *bool `json:"isStarred"`
}
