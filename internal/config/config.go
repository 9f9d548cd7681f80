package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	GeoIP      GeoIPConfig      `mapstructure:"geoip"`
	OutboundIP OutboundIPConfig `mapstructure:"outbound_ip"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Output        string `mapstructure:"output"`
	ConsoleOutput bool   `mapstructure:"console_output"`
	MaxSize       int    `mapstructure:"max_size"`
	MaxBackups    int    `mapstructure:"max_backups"`
	MaxAge        int    `mapstructure:"max_age"`
	Compress      bool   `mapstructure:"compress"`
}

type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"`
	DSN            string        `mapstructure:"dsn"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type UpstreamConfig struct {
	URLTemplate string             `mapstructure:"url_template"`
	Timeout     time.Duration      `mapstructure:"timeout"`
	MaxBodySize string             `mapstructure:"max_body_size"`
	UserAgent   string             `mapstructure:"user_agent"`
	Auth        UpstreamAuthConfig `mapstructure:"auth"`
}

// UpstreamAuthConfig selects how the gateway authenticates to the provider.
// Mode is one of none, bearer or client_credentials.
type UpstreamAuthConfig struct {
	Mode         string   `mapstructure:"mode"`
	Token        string   `mapstructure:"token"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	TokenURL     string   `mapstructure:"token_url"`
	Scopes       []string `mapstructure:"scopes"`
}

type NotifyConfig struct {
	QueueSize   int            `mapstructure:"queue_size"`
	Workers     int            `mapstructure:"workers"`
	SendTimeout time.Duration  `mapstructure:"send_timeout"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	APIBase  string `mapstructure:"api_base"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type GatewayConfig struct {
	ContactHandle  string              `mapstructure:"contact_handle"`
	DomainSentinel string              `mapstructure:"domain_sentinel"`
	Types          []RequestTypeConfig `mapstructure:"types"`
}

// RequestTypeConfig overrides the built-in request type catalog when set.
type RequestTypeConfig struct {
	Code       string `mapstructure:"code"`
	UpstreamID string `mapstructure:"upstream_id"`
	Category   string `mapstructure:"category"`
	Duration   string `mapstructure:"duration"`
}

type GeoIPConfig struct {
	Database string `mapstructure:"database"`
}

type OutboundIPConfig struct {
	Resolver string        `mapstructure:"resolver"`
	Hostname string        `mapstructure:"hostname"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type SchedulerConfig struct {
	Timezone        string `mapstructure:"timezone"`
	DailyReset      string `mapstructure:"daily_reset"`
	SettingsRefresh string `mapstructure:"settings_refresh"`
}

// MaxBodyBytes parses Upstream.MaxBodySize. validate guarantees it parses.
func (c *Config) MaxBodyBytes() int64 {
	n, err := humanize.ParseBytes(c.Upstream.MaxBodySize)
	if err != nil {
		return 0
	}
	return int64(n)
}

// Load loads the configuration from file and environment
func Load() (*Config, error) {
	var cfg Config

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 设置默认值
	setDefaults(&cfg)

	// 验证配置
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a validated configuration built purely from defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	// 服务器配置
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}

	// 日志配置
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "logs/feedgate.log"
	}
	cfg.Logging.ConsoleOutput = true
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 10
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 30
	}

	// 数据库配置
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "./data/feedgate.db"
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 30 * time.Second
	}

	// 上游配置
	if cfg.Upstream.URLTemplate == "" {
		cfg.Upstream.URLTemplate = "https://feeds.example.com/{id}/GetHistoryIssuePage.json"
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 5 * time.Second
	}
	if cfg.Upstream.MaxBodySize == "" {
		cfg.Upstream.MaxBodySize = "8MB"
	}
	if cfg.Upstream.UserAgent == "" {
		cfg.Upstream.UserAgent = "feedgate/1.0"
	}
	if cfg.Upstream.Auth.Mode == "" {
		cfg.Upstream.Auth.Mode = "none"
	}

	// 通知配置
	if cfg.Notify.QueueSize == 0 {
		cfg.Notify.QueueSize = 256
	}
	if cfg.Notify.Workers == 0 {
		cfg.Notify.Workers = 2
	}
	if cfg.Notify.SendTimeout == 0 {
		cfg.Notify.SendTimeout = 10 * time.Second
	}
	if cfg.Notify.Telegram.APIBase == "" {
		cfg.Notify.Telegram.APIBase = "https://api.telegram.org"
	}

	if cfg.Gateway.DomainSentinel == "" {
		cfg.Gateway.DomainSentinel = "direct"
	}

	if cfg.OutboundIP.Resolver == "" {
		cfg.OutboundIP.Resolver = "resolver1.opendns.com:53"
	}
	if cfg.OutboundIP.Hostname == "" {
		cfg.OutboundIP.Hostname = "myip.opendns.com"
	}
	if cfg.OutboundIP.CacheTTL == 0 {
		cfg.OutboundIP.CacheTTL = 10 * time.Minute
	}

	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Local"
	}
	if cfg.Scheduler.DailyReset == "" {
		cfg.Scheduler.DailyReset = "0 0 * * *"
	}
	if cfg.Scheduler.SettingsRefresh == "" {
		cfg.Scheduler.SettingsRefresh = "@every 5m"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for driver %s", cfg.Database.Driver)
	}
	if !strings.Contains(cfg.Upstream.URLTemplate, "{id}") {
		return fmt.Errorf("upstream url_template must contain {id}: %s", cfg.Upstream.URLTemplate)
	}
	if _, err := humanize.ParseBytes(cfg.Upstream.MaxBodySize); err != nil {
		return fmt.Errorf("invalid upstream max_body_size %q: %w", cfg.Upstream.MaxBodySize, err)
	}
	switch cfg.Upstream.Auth.Mode {
	case "none":
	case "bearer":
		if cfg.Upstream.Auth.Token == "" {
			return fmt.Errorf("upstream auth mode bearer requires a token")
		}
	case "client_credentials":
		if cfg.Upstream.Auth.ClientID == "" || cfg.Upstream.Auth.TokenURL == "" {
			return fmt.Errorf("upstream auth mode client_credentials requires client_id and token_url")
		}
	default:
		return fmt.Errorf("unsupported upstream auth mode: %s", cfg.Upstream.Auth.Mode)
	}
	for i, t := range cfg.Gateway.Types {
		if t.Code == "" || t.UpstreamID == "" {
			return fmt.Errorf("gateway.types[%d]: code and upstream_id are required", i)
		}
	}
	return nil
}
