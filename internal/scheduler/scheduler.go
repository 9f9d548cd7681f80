package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 30 * time.Second

// CounterResetter zeroes the per-key daily counters.
type CounterResetter interface {
	ResetDailyCounters(ctx context.Context) (int64, error)
}

// SettingsReloader refreshes the settings snapshot.
type SettingsReloader interface {
	Reload(ctx context.Context) error
}

type Scheduler struct {
	c        *cron.Cron
	keys     CounterResetter
	settings SettingsReloader
	logger   *zap.Logger
}

// New registers the daily reset and the settings refresh. An empty schedule
// disables that job.
func New(cfg config.SchedulerConfig, keys CounterResetter, settings SettingsReloader, logger *zap.Logger) (*Scheduler, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	s := &Scheduler{
		c:        cron.New(cron.WithLocation(loc)),
		keys:     keys,
		settings: settings,
		logger:   logger,
	}

	if cfg.DailyReset != "" && keys != nil {
		if _, err := s.c.AddFunc(cfg.DailyReset, s.ResetDailyCounters); err != nil {
			return nil, fmt.Errorf("invalid daily_reset schedule %q: %w", cfg.DailyReset, err)
		}
	}
	if cfg.SettingsRefresh != "" && settings != nil {
		if _, err := s.c.AddFunc(cfg.SettingsRefresh, s.RefreshSettings); err != nil {
			return nil, fmt.Errorf("invalid settings_refresh schedule %q: %w", cfg.SettingsRefresh, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
}

// Jobs reports how many jobs are registered.
func (s *Scheduler) Jobs() int {
	return len(s.c.Entries())
}

// ResetDailyCounters is the daily reset job.
func (s *Scheduler) ResetDailyCounters() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.keys.ResetDailyCounters(ctx)
	if err != nil {
		s.logger.Error("Failed to reset daily counters", zap.Error(err))
		return
	}
	s.logger.Info("Daily counters reset", zap.Int64("keys", n))
}

// RefreshSettings is the settings reload job.
func (s *Scheduler) RefreshSettings() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.settings.Reload(ctx); err != nil {
		s.logger.Warn("Failed to refresh settings, keeping previous snapshot", zap.Error(err))
	}
}
