package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gmbridge-project/gmbridge/internal/bridge"
	"github.com/gmbridge-project/gmbridge/internal/config"
	"github.com/gmbridge-project/gmbridge/internal/db"
	"github.com/gmbridge-project/gmbridge/internal/events"
	"github.com/gmbridge-project/gmbridge/internal/gm"
	intnet "github.com/gmbridge-project/gmbridge/internal/network"
	"github.com/gmbridge-project/gmbridge/internal/util"
)

// Server is the REST API server for GMBridge. It translates HTTP requests
// into bridged GM commands and exposes operator management endpoints.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	bridge   *bridge.Bridge
	store    *db.UserStore

	// HTTP server
	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, br *bridge.Bridge, store *db.UserStore) *Server {
	// Set Gin mode based on log level
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		bridge:   br,
		store:    store,
	}
}

// Start initializes and starts the API server. It blocks until the context
// is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf(":%d", s.cfg.GetGameData().APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	security := s.cfg.GetApplicationData().Security

	// TLS configuration. A self-signed certificate is generated when the
	// configured files do not exist yet.
	if security.TLSEnabled {
		if !util.FileExists(security.TLSCertFile) || !util.FileExists(security.TLSKeyFile) {
			if err := util.GenerateSelfSignedCert(security.TLSCertFile, security.TLSKeyFile); err != nil {
				return fmt.Errorf("API server error: %w", err)
			}
		}
		cert, err := tls.LoadX509KeyPair(security.TLSCertFile, security.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	// Create listener with SO_REUSEADDR for immediate rebinding after restart
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if security.TLSEnabled {
		tlsListener := tls.NewListener(ln, s.httpServer.TLSConfig)
		err = s.httpServer.Serve(tlsListener)
	} else {
		err = s.httpServer.Serve(ln)
	}

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	security := s.cfg.GetApplicationData().Security

	// CORS
	allowedOrigins := security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(security.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	// Auth middleware
	auth := NewAuthMiddleware(s.store, s.cfg)

	// ---- Public endpoints (no auth required) ----
	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/status", s.handleGetBridgeInfo)
	}

	router.POST("/api/auth/login", s.handleLogin(auth))

	// ---- Protected endpoints ----
	protected := router.Group("/api")
	protected.Use(auth.RequireAuth())

	// GM command endpoints, one per module. Permission is enforced
	// per operation from the catalog, not per route group.
	for _, module := range gm.Modules() {
		module := module
		protected.POST("/"+module, s.handleModuleCommand(module))
	}
	protected.GET("/operations/:module", s.handleListOperations)

	// Monitor-level endpoints
	monitor := protected.Group("/monitor")
	monitor.Use(auth.RequirePermission(gm.PermView))
	{
		monitor.GET("/link", s.handleGetLink)
		monitor.GET("/cpu", s.handleGetCPU)
		monitor.GET("/memory", s.handleGetMemory)
		monitor.GET("/system", s.handleGetSystemInfo)
		monitor.GET("/audit", s.handleGetAudit)
	}

	// Admin-level endpoints
	admin := protected.Group("/admin")
	admin.Use(auth.RequirePermission(gm.PermAdmin))
	{
		admin.GET("/config", s.handleGetConfig)
		admin.POST("/config/game", s.handleSetGameData)
		admin.POST("/config/app", s.handleSetAppData)

		// Operator management
		admin.GET("/users", s.handleGetUsers)
		admin.POST("/users", s.handleCreateUser)
		admin.DELETE("/users/:username", s.handleDeleteUser)
		admin.POST("/users/:username/role", s.handleSetRole)
		admin.POST("/users/:username/password", s.handleSetPassword)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
