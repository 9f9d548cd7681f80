package storage

import (
	"context"
	"fmt"

	"github.com/antigravity/feed-gateway/internal/models"
	"gorm.io/gorm"
)

// AuditStore appends gateway audit rows. Rows are never updated or deleted here.
type AuditStore struct {
	db *gorm.DB
}

func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append inserts one audit record
func (s *AuditStore) Append(ctx context.Context, record *models.AuditLog) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// NotificationLogStore records notifier delivery attempts
type NotificationLogStore struct {
	db *gorm.DB
}

func NewNotificationLogStore(db *gorm.DB) *NotificationLogStore {
	return &NotificationLogStore{db: db}
}

// Record inserts one delivery attempt
func (s *NotificationLogStore) Record(ctx context.Context, entry *models.NotificationLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write notification log: %w", err)
	}
	return nil
}
