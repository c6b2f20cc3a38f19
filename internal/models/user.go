package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a registered account. PasswordHash is a bcrypt hash and is never
// serialized in API responses.
type User struct {
	ID           string    `json:"id" gorm:"type:char(36);primaryKey"`
	Username     string    `json:"username" gorm:"type:text;not null"`
	Email        string    `json:"email" gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
