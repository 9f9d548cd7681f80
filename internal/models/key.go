package models

import (
	"time"
)

// Key lifecycle states as written by the key-management surface.
const (
	KeyStatusActive   = "active"
	KeyStatusInactive = "inactive"
)

// APIKey represents an issued API access key
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"index;not null" json:"userId"`
	Key        string     `gorm:"column:api_key;type:varchar(128);uniqueIndex;not null" json:"-"`
	Name       string     `gorm:"type:varchar(255)" json:"name"`
	Status     string     `gorm:"type:varchar(20);default:'active';not null" json:"status"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CallsToday int64      `gorm:"default:0;not null" json:"callsToday"`
	CallsTotal int64      `gorm:"default:0;not null" json:"callsTotal"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`

	Owner *User `gorm:"foreignKey:UserID" json:"owner,omitempty"`
}

func (APIKey) TableName() string { return "api_keys" }

// IsActive reports whether the key has not been switched off
func (k *APIKey) IsActive() bool {
	return k.Status == KeyStatusActive
}

// IsExpired reports whether the key carries an expiry that is not in the future
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// OwnerName returns the owner's display name, falling back to the username.
func (k *APIKey) OwnerName() string {
	if k.Owner == nil {
		return ""
	}
	if k.Owner.DisplayName != "" {
		return k.Owner.DisplayName
	}
	return k.Owner.Username
}

// OwnerContact returns the owner's alternate contact handle, if known.
func (k *APIKey) OwnerContact() string {
	if k.Owner == nil {
		return ""
	}
	return k.Owner.ContactHandle
}

// User is the account that owns keys. Maintained by account management.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Username      string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	DisplayName   string    `gorm:"type:varchar(255)" json:"displayName"`
	ContactHandle string    `gorm:"column:telegram;type:varchar(100)" json:"telegram,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (User) TableName() string { return "users" }
