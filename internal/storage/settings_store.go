package storage

import (
	"context"
	"fmt"

	"github.com/antigravity/feed-gateway/internal/models"
	"gorm.io/gorm"
)

// SettingsStore reads operator key/value settings
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the values present for the requested keys. Missing keys are
// simply absent from the map.
func (s *SettingsStore) Get(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	var rows []models.Setting
	if err := s.db.WithContext(ctx).Where("setting_key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	for _, row := range rows {
		result[row.Key] = row.Value
	}
	return result, nil
}
