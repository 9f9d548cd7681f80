package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/antigravity/feed-gateway/internal/models"
	"gorm.io/gorm"
)

// ErrKeyNotFound is returned by counter updates against an unknown key id.
var ErrKeyNotFound = errors.New("api key not found")

// KeyStore handles API key lookups and usage counters
type KeyStore struct {
	db *gorm.DB
}

// NewKeyStore creates a new key store
func NewKeyStore(db *gorm.DB) *KeyStore {
	return &KeyStore{db: db}
}

// FindByCredential looks a key up by its exact secret, with its owner
// preloaded. A missing key yields (nil, nil).
func (s *KeyStore) FindByCredential(ctx context.Context, secret string) (*models.APIKey, error) {
	var key models.APIKey
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Where("api_key = ?", secret).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load api key: %w", err)
	}
	return &key, nil
}

// IncrementCounters adds n to both the daily and the lifetime counter in a
// single UPDATE, so concurrent callers never lose an increment.
func (s *KeyStore) IncrementCounters(ctx context.Context, keyID uint, n int64) error {
	if n <= 0 {
		return fmt.Errorf("invalid counter increment: %d", n)
	}
	result := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", keyID).
		UpdateColumns(map[string]interface{}{
			"calls_today": gorm.Expr("calls_today + ?", n),
			"calls_total": gorm.Expr("calls_total + ?", n),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increment counters for key %d: %w", keyID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("key %d: %w", keyID, ErrKeyNotFound)
	}
	return nil
}

// ResetDailyCounters zeroes calls_today on every key and returns how many
// rows changed.
func (s *KeyStore) ResetDailyCounters(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("calls_today > 0").
		UpdateColumn("calls_today", 0)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset daily counters: %w", result.Error)
	}
	return result.RowsAffected, nil
}
