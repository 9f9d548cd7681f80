package models

import "time"

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeBlocked = "blocked"
)

// AuditLog is one append-only record per gateway request attempt
type AuditLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RequestID      string    `gorm:"type:varchar(36);index" json:"requestId"`
	APIKeyID       *uint     `gorm:"column:api_key_id;index" json:"apiKeyId,omitempty"`
	Endpoint       string    `gorm:"type:varchar(100)" json:"endpoint"`
	Category       string    `gorm:"type:varchar(100)" json:"category"`
	Duration       string    `gorm:"type:varchar(50)" json:"duration"`
	Status         string    `gorm:"type:varchar(20);index" json:"status"`
	ErrorMessage   string    `gorm:"type:text" json:"errorMessage,omitempty"`
	ResponseTimeMs *int64    `json:"responseTimeMs,omitempty"`
	IP             string    `gorm:"column:ip_address;type:varchar(64)" json:"ip"`
	Domain         string    `gorm:"type:varchar(255)" json:"domain"`
	CreatedAt      time.Time `gorm:"index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "api_logs" }

// NotificationLog records a notifier delivery attempt
type NotificationLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Channel   string    `gorm:"type:varchar(50)" json:"channel"`
	Reason    string    `gorm:"type:text" json:"reason"`
	Success   bool      `json:"success"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (NotificationLog) TableName() string { return "notification_logs" }

// All returns every model the gateway reads or writes, for migrations.
func All() []interface{} {
	return []interface{}{
		&User{}, &APIKey{}, &WhitelistIP{}, &WhitelistDomain{},
		&Setting{}, &AuditLog{}, &NotificationLog{},
	}
}
