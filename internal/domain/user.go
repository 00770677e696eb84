package domain

import "time"

// User owns every account, message, task and note in the system.
type User struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)" db:"id"`
	Email       string    `json:"email" gorm:"uniqueIndex;type:varchar(255);not null" db:"email"`
	DisplayName string    `json:"displayName,omitempty" gorm:"type:varchar(100)" db:"display_name"`
	IsActive    bool      `json:"isActive" gorm:"not null" db:"is_active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Validate checks the fields required to create a user.
func (u *User) Validate() error {
	if u.ID == "" {
		return ErrIDRequired
	}
	return ValidateEmailAddress(u.Email)
}
