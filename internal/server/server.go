// Package server exposes the redactor over HTTP and streams redaction
// events to WebSocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/piiredact/internal/audit"
	"github.com/raaihank/piiredact/internal/cache"
	"github.com/raaihank/piiredact/internal/config"
	"github.com/raaihank/piiredact/internal/logger"
	"github.com/raaihank/piiredact/internal/redact"
	"github.com/raaihank/piiredact/internal/rules"
	"github.com/raaihank/piiredact/internal/web"
	"github.com/raaihank/piiredact/internal/websocket"
)

const (
	shutdownTimeout = 10 * time.Second
	statusInterval  = 30 * time.Second
)

// ResultCache stores redaction results keyed by rule fingerprint and input
type ResultCache interface {
	Get(ctx context.Context, fingerprint, text string) (*cache.CachedResult, bool)
	Store(ctx context.Context, fingerprint, text string, result *redact.Result) error
	GetStats(ctx context.Context) (*cache.CacheStats, error)
	Clear(ctx context.Context) error
}

// AuditStore persists redaction summaries
type AuditStore interface {
	Record(ctx context.Context, rec *audit.Record) error
	Recent(ctx context.Context, limit int) ([]*audit.Record, error)
	Stats(ctx context.Context) (*audit.Stats, error)
}

// Options wires a Server. Cache, Audit and Hub are optional.
type Options struct {
	Config   *config.Config
	Redactor *redact.Redactor
	Cache    ResultCache
	Audit    AuditStore
	Hub      *websocket.Hub
	Logger   *logger.Logger
	Version  string
}

// Server represents the redaction HTTP service
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	redactor *redact.Redactor
	cache    ResultCache
	audit    AuditStore
	hub      *websocket.Hub
	router   *mux.Router
	server   *http.Server
	limiter  *clientLimiter
	version  string
	started  time.Time

	totalRequests   atomic.Int64
	totalRedactions atomic.Int64
}

// New creates a new server instance
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Redactor == nil {
		return nil, errors.New("server requires a config and a redactor")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	cfg := opts.Config

	hub := opts.Hub
	if hub == nil && cfg.WebSocket.Enabled {
		hub = websocket.NewHub(HubConfig(cfg.WebSocket), log.WithComponent("websocket").Logger)
	}

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		redactor: opts.Redactor,
		cache:    opts.Cache,
		audit:    opts.Audit,
		hub:      hub,
		router:   mux.NewRouter(),
		version:  opts.Version,
		started:  time.Now(),
	}
	if cfg.Server.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// HubConfig maps the websocket config section onto hub settings
func HubConfig(cfg config.WebSocketConfig) *websocket.HubConfig {
	hc := websocket.DefaultHubConfig()
	hc.MaxConnections = cfg.MaxConnections
	hc.ReadBufferSize = cfg.ReadBufferSize
	hc.WriteBufferSize = cfg.WriteBufferSize
	hc.PingInterval = cfg.PingInterval
	hc.PongTimeout = cfg.PongTimeout
	hc.WriteTimeout = cfg.WriteTimeout
	hc.MaxMessageSize = cfg.MaxMessageSize
	hc.AllowedOrigins = cfg.AllowedOrigins
	hc.Username = cfg.Username
	hc.Password = cfg.Password
	return hc
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.hub.HandleWebSocket).Methods(http.MethodGet)
		s.router.Handle("/dashboard", web.Dashboard(s.config.WebSocket.Path)).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
	api.HandleFunc("/redact", s.handleRedact).Methods(http.MethodPost)
	api.HandleFunc("/redact/batch", s.handleRedactBatch).Methods(http.MethodPost)

	if s.audit != nil {
		api.HandleFunc("/audit/recent", s.handleAuditRecent).Methods(http.MethodGet)
		api.HandleFunc("/audit/stats", s.handleAuditStats).Methods(http.MethodGet)
	}
	if s.cache != nil {
		api.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
		api.HandleFunc("/cache", s.handleCacheClear).Methods(http.MethodDelete)
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub, or nil when it is disabled
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// Run serves until ctx is done, then shuts down gracefully. It also runs
// the WebSocket hub and, when configured, the pattern file watcher.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.hub != nil {
		go s.hub.Run(ctx)
		go s.publishStatus(ctx, statusInterval)
	}

	if path := s.config.Redaction.Patterns; path != "" && s.config.Redaction.WatchPatterns {
		go func() {
			if err := config.WatchFile(ctx, path, config.DefaultDebounce, s.logger.Logger, s.ReloadRules); err != nil {
				s.logger.Error("Pattern file watcher stopped", zap.Error(err))
			}
		}()
	}

	s.logger.Info("Starting piiredact server",
		zap.String("addr", s.server.Addr),
		zap.Int("rules", s.redactor.Registry().Len()),
		zap.Bool("cache", s.cache != nil),
		zap.Bool("audit", s.audit != nil),
		zap.Bool("websocket", s.hub != nil),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Stopping piiredact server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// publishStatus sends a status snapshot to WebSocket clients every interval
func (s *Server) publishStatus(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.PublishStatus(s.status())
		}
	}
}

func (s *Server) status() websocket.SystemStatusEvent {
	return websocket.SystemStatusEvent{
		Status:          "healthy",
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		TotalRequests:   s.totalRequests.Load(),
		TotalRedactions: s.totalRedactions.Load(),
		ActiveRules:     s.redactor.Registry().Len(),
	}
}

// ReloadRules rebuilds the registry from path and swaps it in. An invalid
// file is logged and the active rules stay in place.
func (s *Server) ReloadRules(path string) {
	reg, err := rules.Build(path, s.config.Redaction.UseDefaults, rules.Options{MatchTimeout: s.config.Redaction.MatchTimeout})
	if err != nil {
		s.logger.Error("Pattern reload failed, keeping previous rules",
			zap.String("path", path),
			zap.Error(err))
		if s.hub != nil {
			s.hub.PublishReload(websocket.RulesReloadedEvent{Path: path, Error: err.Error()})
		}
		return
	}

	s.redactor.Swap(reg)
	if s.hub != nil {
		s.hub.PublishReload(websocket.RulesReloadedEvent{
			Path:        path,
			Rules:       reg.Names(),
			Fingerprint: reg.Fingerprint(),
		})
	}
}
