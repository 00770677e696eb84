package domain

import "time"

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// Task is a to-do item, possibly created from an email.
type Task struct {
	ID              string     `json:"id" gorm:"primaryKey;type:varchar(36)" db:"id"`
	UserID          string     `json:"userId" gorm:"type:varchar(36);index;not null" db:"user_id"`
	Title           string     `json:"title" gorm:"type:varchar(255);not null" db:"title"`
	Description     string     `json:"description" gorm:"type:text" db:"description"`
	Status          TaskStatus `json:"status" gorm:"type:varchar(32);default:'todo'" db:"status"`
	DueDate         *time.Time `json:"dueDate,omitempty" db:"due_date"`
	SourceMessageID *string    `json:"sourceMessageId,omitempty" gorm:"type:varchar(36);index" db:"source_message_id"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}
