package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/antigravity/feed-gateway/internal/gateway"
	"github.com/antigravity/feed-gateway/internal/settings"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OutboundResolver reports the gateway's own public IP.
type OutboundResolver interface {
	PublicIP(ctx context.Context) (string, error)
}

// Deps are the components the HTTP layer fronts.
type Deps struct {
	Gateway  *gateway.Gateway
	Settings *settings.Provider
	Resolver OutboundResolver
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP server
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	gateway  *gateway.Gateway
	settings *settings.Provider
	resolver OutboundResolver
	gatherer prometheus.Gatherer
}

// New creates a new server instance
func New(cfg *config.Config, logger *zap.Logger, deps Deps) (*Server, error) {
	if deps.Gateway == nil {
		return nil, fmt.Errorf("server requires a gateway")
	}

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		router:   gin.New(),
		gateway:  deps.Gateway,
		settings: deps.Settings,
		resolver: deps.Resolver,
		gatherer: deps.Gatherer,
	}
	if s.settings == nil {
		s.settings = settings.NewStatic(settings.Snapshot{})
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	// 未配置时不信任任何代理头，ClientIP 取连接地址
	var proxies []string
	if len(cfg.Server.TrustedProxies) > 0 {
		proxies = cfg.Server.TrustedProxies
	}
	if err := s.router.SetTrustedProxies(proxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	// 设置中间件
	s.setupMiddleware()

	// 设置路由
	s.setupRoutes()

	return s, nil
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.recoveryMiddleware())
	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.corsMiddleware())
}

func (s *Server) setupRoutes() {
	// 健康检查
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ping", s.ping)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	feed := s.router.Group("/api/feed")
	{
		feed.GET("", s.handleFeed)
		feed.POST("", s.handleFeed)
		feed.OPTIONS("", noContent)

		feed.GET("/types", s.listTypes)
		feed.GET("/myip", s.myIP)
	}

	s.router.NoRoute(func(c *gin.Context) {
		s.envelope(c, http.StatusNotFound, "not_found", "Route not found", nil)
	})
}

// 基础handlers
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong"})
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
