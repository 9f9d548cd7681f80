package storage

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/antigravity/feed-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// setupTestDB opens a fresh in-memory sqlite database with all tables.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver:         "sqlite",
		DSN:            "file::memory:",
		ConnectTimeout: time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func createKey(t *testing.T, db *gorm.DB, secret, status string) *models.APIKey {
	t.Helper()
	owner := &models.User{Username: "owner-" + secret, DisplayName: "Owner " + secret, ContactHandle: "@owner"}
	require.NoError(t, db.Create(owner).Error)
	key := &models.APIKey{UserID: owner.ID, Key: secret, Name: "key " + secret, Status: status}
	require.NoError(t, db.Create(key).Error)
	return key
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}

func TestKeyStore_FindByCredential(t *testing.T) {
	db := setupTestDB(t)
	store := NewKeyStore(db)
	created := createKey(t, db, "secret-1", models.KeyStatusActive)

	key, err := store.FindByCredential(context.Background(), "secret-1")
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, created.ID, key.ID)
	assert.Equal(t, "Owner secret-1", key.OwnerName())
	assert.Equal(t, "@owner", key.OwnerContact())

	// exact match only
	key, err = store.FindByCredential(context.Background(), "SECRET-1")
	require.NoError(t, err)
	assert.Nil(t, key)

	key, err = store.FindByCredential(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestKeyStore_IncrementCounters(t *testing.T) {
	db := setupTestDB(t)
	store := NewKeyStore(db)
	key := createKey(t, db, "secret-2", models.KeyStatusActive)

	require.NoError(t, store.IncrementCounters(context.Background(), key.ID, 1))
	require.NoError(t, store.IncrementCounters(context.Background(), key.ID, 2))

	var updated models.APIKey
	require.NoError(t, db.First(&updated, key.ID).Error)
	assert.Equal(t, int64(3), updated.CallsToday)
	assert.Equal(t, int64(3), updated.CallsTotal)

	assert.Error(t, store.IncrementCounters(context.Background(), key.ID, 0))
	err := store.IncrementCounters(context.Background(), 9999, 1)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestKeyStore_IncrementCountersConcurrent(t *testing.T) {
	db := setupTestDB(t)
	store := NewKeyStore(db)
	key := createKey(t, db, "secret-3", models.KeyStatusActive)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.IncrementCounters(context.Background(), key.ID, 1)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var updated models.APIKey
	require.NoError(t, db.First(&updated, key.ID).Error)
	assert.Equal(t, int64(n), updated.CallsToday)
	assert.Equal(t, int64(n), updated.CallsTotal)
}

func TestKeyStore_IncrementCountersIsSingleUpdate(t *testing.T) {
	db := setupTestDB(t)
	store := NewKeyStore(db)
	key := createKey(t, db, "secret-sql", models.KeyStatusActive)

	var (
		updates []string
		queries int
	)
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("test:capture_update", func(tx *gorm.DB) {
		updates = append(updates, tx.Statement.SQL.String())
	}))
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:count_query", func(tx *gorm.DB) {
		queries++
	}))

	require.NoError(t, store.IncrementCounters(context.Background(), key.ID, 2))

	// 无读后写：只有一条自增 UPDATE
	assert.Zero(t, queries)
	require.Len(t, updates, 1)
	sql := updates[0]
	assert.True(t, strings.HasPrefix(sql, "UPDATE `api_keys` SET"), sql)
	assert.Contains(t, sql, "`calls_today`=calls_today + ?")
	assert.Contains(t, sql, "`calls_total`=calls_total + ?")
	assert.Contains(t, sql, "WHERE id = ?")
}

func TestKeyStore_ResetDailyCounters(t *testing.T) {
	db := setupTestDB(t)
	store := NewKeyStore(db)
	k1 := createKey(t, db, "k1", models.KeyStatusActive)
	k2 := createKey(t, db, "k2", models.KeyStatusActive)
	require.NoError(t, store.IncrementCounters(context.Background(), k1.ID, 4))
	require.NoError(t, store.IncrementCounters(context.Background(), k2.ID, 1))

	n, err := store.ResetDailyCounters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var keys []models.APIKey
	require.NoError(t, db.Order("id").Find(&keys).Error)
	for _, k := range keys {
		assert.Equal(t, int64(0), k.CallsToday)
	}
	assert.Equal(t, int64(4), keys[0].CallsTotal)
	assert.Equal(t, int64(1), keys[1].CallsTotal)
}

func TestWhitelistStore(t *testing.T) {
	db := setupTestDB(t)
	store := NewWhitelistStore(db)
	key := createKey(t, db, "wl", models.KeyStatusActive)
	other := createKey(t, db, "other", models.KeyStatusActive)

	require.NoError(t, db.Create(&models.WhitelistIP{APIKeyID: key.ID, IP: "203.0.113.5"}).Error)
	require.NoError(t, db.Create(&models.WhitelistIP{APIKeyID: key.ID, IP: "*"}).Error)
	require.NoError(t, db.Create(&models.WhitelistIP{APIKeyID: other.ID, IP: "198.51.100.1"}).Error)
	require.NoError(t, db.Create(&models.WhitelistDomain{APIKeyID: key.ID, Domain: "example.com"}).Error)

	ips, err := store.ListIPs(context.Background(), key.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"203.0.113.5", "*"}, ips)

	domains, err := store.ListDomains(context.Background(), key.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, domains)

	domains, err = store.ListDomains(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestSettingsStore_Get(t *testing.T) {
	db := setupTestDB(t)
	store := NewSettingsStore(db)
	require.NoError(t, db.Create(&models.Setting{Key: models.SettingContactHandle, Value: "@support"}).Error)
	require.NoError(t, db.Create(&models.Setting{Key: "unrelated", Value: "x"}).Error)

	values, err := store.Get(context.Background(), []string{models.SettingContactHandle, models.SettingTelegramBotToken})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{models.SettingContactHandle: "@support"}, values)

	values, err = store.Get(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestAuditStore_Append(t *testing.T) {
	db := setupTestDB(t)
	store := NewAuditStore(db)

	ms := int64(42)
	record := &models.AuditLog{
		RequestID:      "req-1",
		Endpoint:       "wg1",
		Category:       "WinGo",
		Duration:       "1 Min",
		Status:         models.OutcomeSuccess,
		ResponseTimeMs: &ms,
		IP:             "203.0.113.5",
		Domain:         "app.example.com",
	}
	require.NoError(t, store.Append(context.Background(), record))
	assert.NotZero(t, record.ID)

	var stored models.AuditLog
	require.NoError(t, db.First(&stored, record.ID).Error)
	assert.Equal(t, models.OutcomeSuccess, stored.Status)
	assert.Nil(t, stored.APIKeyID)
	require.NotNil(t, stored.ResponseTimeMs)
	assert.Equal(t, int64(42), *stored.ResponseTimeMs)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestNotificationLogStore_Record(t *testing.T) {
	db := setupTestDB(t)
	store := NewNotificationLogStore(db)

	require.NoError(t, store.Record(context.Background(), &models.NotificationLog{
		Channel: "telegram", Reason: "no IP whitelist configured", Success: false, Error: "timeout",
	}))

	var count int64
	require.NoError(t, db.Model(&models.NotificationLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
