package storage

import (
	"context"
	"fmt"

	"github.com/antigravity/feed-gateway/internal/models"
	"gorm.io/gorm"
)

// WhitelistStore reads the per-key IP and domain allow-lists
type WhitelistStore struct {
	db *gorm.DB
}

func NewWhitelistStore(db *gorm.DB) *WhitelistStore {
	return &WhitelistStore{db: db}
}

// ListIPs returns the raw IP entries for a key.
func (s *WhitelistStore) ListIPs(ctx context.Context, keyID uint) ([]string, error) {
	ips := []string{}
	err := s.db.WithContext(ctx).
		Model(&models.WhitelistIP{}).
		Where("api_key_id = ?", keyID).
		Pluck("ip_address", &ips).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ip whitelist for key %d: %w", keyID, err)
	}
	return ips, nil
}

// ListDomains returns the raw domain entries for a key.
func (s *WhitelistStore) ListDomains(ctx context.Context, keyID uint) ([]string, error) {
	domains := []string{}
	err := s.db.WithContext(ctx).
		Model(&models.WhitelistDomain{}).
		Where("api_key_id = ?", keyID).
		Pluck("domain", &domains).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list domain whitelist for key %d: %w", keyID, err)
	}
	return domains, nil
}
