package models

import "time"

// WildcardEntry in a whitelist matches any caller value.
const WildcardEntry = "*"

// WhitelistIP is one allowed caller IP for a key
type WhitelistIP struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	APIKeyID  uint      `gorm:"column:api_key_id;index;not null" json:"apiKeyId"`
	IP        string    `gorm:"column:ip_address;type:varchar(64);not null" json:"ip"`
	CreatedAt time.Time `json:"createdAt"`
}

func (WhitelistIP) TableName() string { return "api_key_ips" }

// WhitelistDomain is one allowed caller domain for a key
type WhitelistDomain struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	APIKeyID  uint      `gorm:"column:api_key_id;index;not null" json:"apiKeyId"`
	Domain    string    `gorm:"type:varchar(255);not null" json:"domain"`
	CreatedAt time.Time `json:"createdAt"`
}

func (WhitelistDomain) TableName() string { return "api_key_domains" }
