package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Affiliation is the organization a user belongs to.
type Affiliation string

const (
	AffiliationPostech               Affiliation = "postech"
	AffiliationAppleDeveloperAcademy Affiliation = "apple_developer_academy"
)

// Valid reports whether a is a known affiliation.
func (a Affiliation) Valid() bool {
	return a == AffiliationPostech || a == AffiliationAppleDeveloperAcademy
}

// User представляє профіль користувача.
// Містить відображуване ім'я, приналежність та контактну пошту.
type User struct {
	ID          string      `gorm:"primaryKey" json:"id"` // UUID
	Nickname    string      `gorm:"type:text;not null" json:"nickname"`
	Affiliation Affiliation `gorm:"type:text;not null" json:"affiliation"`
	Email       string      `gorm:"uniqueIndex;not null" json:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string `gorm:"not null" json:"-"`
	// TelegramChatID receives host notifications when set.
	TelegramChatID *int64 `gorm:"index" json:"telegram_chat_id,omitempty"`
	// Language for notifications ("ko" or "en").
	Language string `gorm:"type:text;default:'ko'" json:"language,omitempty"`
}

// BeforeCreate є хуком GORM, який викликається перед створенням запису.
// Він генерує новий UUID для користувача, якщо ID ще не встановлено.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
