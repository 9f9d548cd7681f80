package cmd

import (
	"context"
	"fmt"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/antigravity/feed-gateway/internal/gateway"
	"github.com/antigravity/feed-gateway/internal/geo"
	"github.com/antigravity/feed-gateway/internal/metrics"
	"github.com/antigravity/feed-gateway/internal/netinfo"
	"github.com/antigravity/feed-gateway/internal/notify"
	"github.com/antigravity/feed-gateway/internal/scheduler"
	"github.com/antigravity/feed-gateway/internal/server"
	"github.com/antigravity/feed-gateway/internal/settings"
	"github.com/antigravity/feed-gateway/internal/storage"
	"github.com/antigravity/feed-gateway/internal/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds everything serve starts and must stop again.
type app struct {
	db         *gorm.DB
	server     *server.Server
	dispatcher *notify.Dispatcher
	scheduler  *scheduler.Scheduler
	locator    geo.Locator
	logger     *zap.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := storage.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, logger: log}

	// 设置快照：数据库中的值覆盖配置文件
	provider := settings.NewProvider(storage.NewSettingsStore(db), cfg)
	if err := provider.Reload(ctx); err != nil {
		log.Warn("Failed to load settings from database, using config values", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	a.locator, err = geo.Open(cfg.GeoIP.Database)
	if err != nil {
		log.Warn("GeoIP database unavailable, alerts will not carry a country", zap.Error(err))
		a.locator = geo.Noop{}
	}

	sender := notify.NewTelegramSender(cfg.Notify.Telegram.APIBase, provider)
	a.dispatcher = notify.NewDispatcher(cfg.Notify, sender, a.locator, storage.NewNotificationLogStore(db), m, log)
	a.dispatcher.Start()

	client, err := upstream.New(cfg.Upstream, cfg.MaxBodyBytes())
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	keys := storage.NewKeyStore(db)
	gw := gateway.New(gateway.Deps{
		Catalog:        gateway.CatalogFromConfig(cfg.Gateway.Types),
		Keys:           keys,
		Whitelist:      storage.NewWhitelistStore(db),
		Audit:          storage.NewAuditStore(db),
		Notifier:       a.dispatcher,
		Upstream:       client,
		Settings:       provider,
		Metrics:        m,
		Logger:         log.Named("gateway"),
		DomainSentinel: cfg.Gateway.DomainSentinel,
	})

	a.server, err = server.New(cfg, log, server.Deps{
		Gateway:  gw,
		Settings: provider,
		Resolver: netinfo.NewResolver(cfg.OutboundIP),
		Gatherer: reg,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.scheduler, err = scheduler.New(cfg.Scheduler, keys, provider, log.Named("scheduler"))
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.scheduler.Start()

	return a, nil
}

// close stops background work in reverse start order.
func (a *app) close(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			a.logger.Warn("Notification queue not fully drained", zap.Error(err))
		}
	}
	if a.locator != nil {
		a.locator.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
