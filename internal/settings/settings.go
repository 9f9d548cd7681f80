// Package settings holds the operator settings snapshot the gateway and the
// notifier read. Values in the Settings Store override config defaults.
package settings

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/antigravity/feed-gateway/internal/models"
)

// Snapshot is an immutable view of the settings at load time.
type Snapshot struct {
	ContactHandle    string
	TelegramBotToken string
	TelegramChatID   string
}

// TelegramConfigured reports whether alerts have somewhere to go.
func (s Snapshot) TelegramConfigured() bool {
	return s.TelegramBotToken != "" && s.TelegramChatID != ""
}

// Source is the read side of the Settings Store.
type Source interface {
	Get(ctx context.Context, keys []string) (map[string]string, error)
}

var keys = []string{
	models.SettingContactHandle,
	models.SettingTelegramBotToken,
	models.SettingTelegramChatID,
}

// Provider serves the current snapshot and reloads it on demand.
type Provider struct {
	source   Source
	defaults Snapshot
	current  atomic.Pointer[Snapshot]
}

// NewProvider builds a provider whose defaults come from config. Call Reload
// to pull the store values in.
func NewProvider(source Source, cfg *config.Config) *Provider {
	p := &Provider{
		source: source,
		defaults: Snapshot{
			ContactHandle:    cfg.Gateway.ContactHandle,
			TelegramBotToken: cfg.Notify.Telegram.BotToken,
			TelegramChatID:   cfg.Notify.Telegram.ChatID,
		},
	}
	snap := p.defaults
	p.current.Store(&snap)
	return p
}

// NewStatic returns a provider that always serves snap.
func NewStatic(snap Snapshot) *Provider {
	p := &Provider{defaults: snap}
	p.current.Store(&snap)
	return p
}

// Current returns the active snapshot
func (p *Provider) Current() Snapshot {
	return *p.current.Load()
}

// Reload reads the store and swaps the snapshot in. On error the previous
// snapshot stays active.
func (p *Provider) Reload(ctx context.Context) error {
	if p.source == nil {
		return nil
	}
	values, err := p.source.Get(ctx, keys)
	if err != nil {
		return fmt.Errorf("failed to reload settings: %w", err)
	}

	snap := p.defaults
	if v := values[models.SettingContactHandle]; v != "" {
		snap.ContactHandle = v
	}
	if v := values[models.SettingTelegramBotToken]; v != "" {
		snap.TelegramBotToken = v
	}
	if v := values[models.SettingTelegramChatID]; v != "" {
		snap.TelegramChatID = v
	}
	p.current.Store(&snap)
	return nil
}
