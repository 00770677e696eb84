package domain

import "time"

// NoteType classifies a note.
type NoteType string

const (
	NoteDaily   NoteType = "daily"
	NoteGeneral NoteType = "general"
)

// Note is free-form text, optionally dated and tied to a task.
type Note struct {
	ID              string     `json:"id" gorm:"primaryKey;type:varchar(36)" db:"id"`
	UserID          string     `json:"userId" gorm:"type:varchar(36);index;not null" db:"user_id"`
	Type            NoteType   `json:"noteType" gorm:"column:note_type;type:varchar(16);default:'general'" db:"note_type"`
	Date            *time.Time `json:"date,omitempty" gorm:"type:date" db:"date"`
	Job             string     `json:"job,omitempty" gorm:"type:varchar(100)" db:"job"`
	TaskID          *string    `json:"taskId,omitempty" gorm:"type:varchar(36);index" db:"task_id"`
	Title           string     `json:"title" gorm:"type:varchar(255);not null" db:"title"`
	Content         string     `json:"content" gorm:"type:text" db:"content"`
	SourceMessageID *string    `json:"sourceMessageId,omitempty" gorm:"type:varchar(36);index" db:"source_message_id"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}
