package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hoststack/license-service/internal/anomaly"
	"github.com/hoststack/license-service/internal/audit"
	"github.com/hoststack/license-service/internal/circuitbreaker"
	"github.com/hoststack/license-service/internal/config"
	"github.com/hoststack/license-service/internal/fingerprint"
	"github.com/hoststack/license-service/internal/handler"
	"github.com/hoststack/license-service/internal/healthcheck"
	"github.com/hoststack/license-service/internal/middleware"
	"github.com/hoststack/license-service/internal/ratelimit"
	"github.com/hoststack/license-service/internal/repository"
	"github.com/hoststack/license-service/internal/service"
	"github.com/hoststack/license-service/internal/signature"
	"github.com/hoststack/license-service/internal/storage"
	"github.com/hoststack/license-service/internal/validator"
)

type Server struct {
	router   *gin.Engine
	config   *config.Config
	redis    *storage.RedisClient
	postgres *storage.Postgres

	auditLogger    *audit.Logger
	counterBreaker *circuitbreaker.CircuitBreaker
	prober         *healthcheck.Prober

	validateHandler *handler.ValidateHandler
	licenseHandler  *handler.LicenseHandler
	authHandler     *handler.AuthHandler
	auditHandler    *handler.AuditHandler
	authService     *service.AuthService

	httpServer *http.Server
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	licenseRepo := repository.NewLicenseRepository(postgres)
	logRepo := repository.NewValidationLogRepository(postgres)
	userRepo := repository.NewUserRepository(postgres)

	licenseService := service.NewLicenseService(licenseRepo, redis)
	authService := service.NewAuthService(userRepo, cfg.Security.JWTSecret, cfg.Security.JWTExpiryHours)
	auditService := service.NewAuditService(logRepo)

	auditLogger := audit.NewLogger(logRepo, cfg.Audit.BufferSize)

	// One breaker for the counter store: the rate limiter and the anomaly
	// detector share redis, so they share its failure state.
	counterBreaker := circuitbreaker.New(circuitbreaker.Config{
		MaxFailures:     5,
		Timeout:         30 * time.Second,
		HalfOpenSuccess: 1,
	})

	verifier := signature.NewVerifier(
		cfg.Security.SigningSecret,
		time.Duration(cfg.Security.ClockSkewSeconds)*time.Second,
	)

	limiter := ratelimit.NewDual(redis, ratelimit.DualConfig{
		LicenseWindow: time.Duration(cfg.RateLimit.LicenseWindowSeconds) * time.Second,
		LicenseLimit:  cfg.RateLimit.LicenseLimit,
		AddressWindow: time.Duration(cfg.RateLimit.IPWindowSeconds) * time.Second,
		AddressLimit:  cfg.RateLimit.IPLimit,
	}, counterBreaker)

	detector := anomaly.NewDetector(redis, anomaly.Config{
		VelocityWindow:    time.Duration(cfg.Anomaly.VelocityWindowSeconds) * time.Second,
		VelocityThreshold: cfg.Anomaly.VelocityThreshold,
		AddressWindow:     time.Duration(cfg.Anomaly.AddressWindowSeconds) * time.Second,
		AddressThreshold:  cfg.Anomaly.AddressThreshold,
	}, counterBreaker)

	recorder := fingerprint.NewRecorder(redis)

	pipeline := validator.New(verifier, limiter, detector, licenseService, auditLogger, recorder)

	prober := healthcheck.NewProber(healthcheck.Config{})
	prober.Register("redis", redis.Ping)
	prober.Register("database", func(ctx context.Context) error {
		return postgres.Ping(ctx)
	})

	s := &Server{
		router:          router,
		config:          cfg,
		redis:           redis,
		postgres:        postgres,
		auditLogger:     auditLogger,
		counterBreaker:  counterBreaker,
		prober:          prober,
		validateHandler: handler.NewValidateHandler(pipeline),
		licenseHandler:  handler.NewLicenseHandler(licenseService),
		authHandler:     handler.NewAuthHandler(authService),
		auditHandler:    handler.NewAuditHandler(auditService),
		authService:     authService,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api/v1")
	{
		api.POST("/validate", middleware.PublicRateLimit(s.redis, s.config), s.validateHandler.Validate)
	}

	auth := s.router.Group("/auth")
	{
		auth.POST("/register", s.authHandler.Register)
		auth.POST("/login", s.authHandler.Login)
	}

	admin := s.router.Group("/admin")
	admin.Use(middleware.RequireAuth(s.authService))
	{
		admin.GET("/status", s.adminStatus)

		admin.POST("/licenses", s.licenseHandler.Create)
		admin.GET("/licenses", s.licenseHandler.List)
		admin.GET("/licenses/:id", s.licenseHandler.Get)
		admin.PUT("/licenses/:id", s.licenseHandler.Update)
		admin.DELETE("/licenses/:id", s.licenseHandler.Delete)
		admin.GET("/licenses/:id/activity", s.auditHandler.LicenseActivity)

		admin.GET("/audit/summary", s.auditHandler.Summary)
		admin.GET("/audit/logs", s.auditHandler.Logs)
		admin.DELETE("/audit/logs", s.auditHandler.Cleanup)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	statuses := s.prober.Statuses()

	status := "healthy"
	statusCode := http.StatusOK

	if !s.prober.Healthy() {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	checks := gin.H{}
	for name, st := range statuses {
		checks[name] = st.Healthy
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "license-service",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

func (s *Server) adminStatus(c *gin.Context) {
	breakerStats := s.counterBreaker.GetStats()

	c.JSON(http.StatusOK, gin.H{
		"service":   "running",
		"uptime":    time.Since(startTime).Seconds(),
		"timestamp": time.Now().Unix(),
		"dependencies": s.prober.Statuses(),
		"counter_store_breaker": gin.H{
			"state":             breakerStats.State.String(),
			"failure_count":     breakerStats.FailureCount,
			"success_count":     breakerStats.SuccessCount,
			"last_failure_time": breakerStats.LastFailureTime,
			"last_state_change": breakerStats.LastStateChange,
		},
	})
}

func (s *Server) Run(addr string) error {
	s.prober.Start()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.Printf("Starting license service on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	s.prober.Stop()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	// Flush pending audit entries after in-flight requests finish
	s.auditLogger.Close()

	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
