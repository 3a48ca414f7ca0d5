package database

import "time"

// Setting is a client-local key/value pair (e.g. the fernet key).
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Credential is the persisted login: auth token, user id and display name.
// There is at most one row; the three fields are written and cleared together.
type Credential struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UID       string    `gorm:"not null" json:"uid"`
	Username  string    `gorm:"not null" json:"username"`
	Server    string    `gorm:"not null;default:''" json:"server"`
	TokenEnc  string    `gorm:"not null" json:"-"` // Fernet-encrypted
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const credentialRowID = 1
