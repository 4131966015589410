package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/auth"
	"github.com/SAOSTAR1501/sso-backend/internal/cache"
	"github.com/SAOSTAR1501/sso-backend/internal/client"
	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/handlers"
	"github.com/SAOSTAR1501/sso-backend/internal/mail"
	"github.com/SAOSTAR1501/sso-backend/internal/metrics"
	"github.com/SAOSTAR1501/sso-backend/internal/middleware"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/services"
	"github.com/SAOSTAR1501/sso-backend/internal/store"
	"github.com/SAOSTAR1501/sso-backend/internal/token"
	"github.com/SAOSTAR1501/sso-backend/internal/version"

	"github.com/appleboy/graceful"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		version.PrintVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "server":
		runServer()
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Usage: %s [OPTIONS] COMMAND\n\n", os.Args[0])
	fmt.Println("Centralized single sign-on server")
	fmt.Println("\nCommands:")
	fmt.Println("  server    Start the SSO server")
	fmt.Println("\nOptions:")
	fmt.Println("  -v, --version    Show version information")
	fmt.Println("  -h, --help       Show this help message")
}

func runServer() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	recorder := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Println("Prometheus metrics initialized")
	} else {
		log.Println("Metrics disabled (using noop implementation)")
	}

	auditService := services.NewAuditService(db, cfg.EnableAuditLogging, cfg.AuditLogBufferSize)

	clientCache, clientCacheCloser := setupClientCache(cfg)

	mailer := mail.New(cfg)
	issuer := token.NewIssuer(cfg)

	otpService := services.NewOTPService(db, cfg)
	authService := services.NewAuthService(db, cfg, otpService, mailer, auditService, recorder)
	clientService := services.NewClientAppService(db, cfg, auditService, clientCache)
	codeService := services.NewAuthorizationCodeService(db, cfg, auditService, recorder)

	oauthHandler := handlers.NewOAuthHandler(
		clientService, codeService, authService, issuer, auditService, recorder, cfg)
	authHandler := handlers.NewAuthHandler(authService, issuer, auditService, recorder, cfg)
	clientHandler := handlers.NewClientAppHandler(clientService)
	auditHandler := handlers.NewAuditHandler(auditService)
	healthHandler := handlers.NewHealthHandler(db)
	googleHandler := setupGoogleHandler(cfg, authService, issuer, authHandler, recorder)

	setupGinMode(cfg)
	r := gin.New()
	r.Use(metrics.HTTPMetricsMiddleware(recorder))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigins, clientService))

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: http.SameSiteLaxMode, // Lax so OAuth redirects carry the session
	})
	r.Use(sessions.Sessions("sso_session", sessionStore))

	r.GET("/health", healthHandler.Check)

	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	limiters := setupRateLimiting(cfg)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", limiters.login, authHandler.Register)
		authGroup.POST("/login", limiters.login, authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/refresh", limiters.token, authHandler.Refresh)
		authGroup.GET("/me", middleware.RequireAuth(issuer), authHandler.Me)
		authGroup.POST("/forgot-password", limiters.otp, authHandler.ForgotPassword)
		authGroup.POST("/reset-password", limiters.otp, authHandler.ResetPassword)

		if googleHandler != nil {
			authGroup.GET("/google", googleHandler.Login)
			authGroup.GET("/google/callback", googleHandler.Callback)
		}
	}

	oauthGroup := r.Group("/oauth")
	{
		oauthGroup.GET("/authorize", oauthHandler.Authorize)
		oauthGroup.POST("/consent", oauthHandler.Consent)
		oauthGroup.POST("/token", limiters.token, oauthHandler.Token)
		oauthGroup.GET("/account", middleware.RequireAuth(issuer), oauthHandler.Account)
		oauthGroup.GET("/check-session", oauthHandler.CheckSession)
	}

	adminGroup := r.Group("/admin",
		middleware.RequireAuth(issuer), middleware.RequireAdmin(authService))
	{
		adminGroup.POST("/client-apps", clientHandler.Create)
		adminGroup.GET("/client-apps", clientHandler.List)
		adminGroup.GET("/client-apps/:clientID", clientHandler.Get)
		adminGroup.PUT("/client-apps/:clientID", clientHandler.Update)
		adminGroup.DELETE("/client-apps/:clientID", clientHandler.Delete)
		adminGroup.POST("/client-apps/:clientID/regenerate-secret", clientHandler.RegenerateSecret)
		adminGroup.GET("/audit-logs", auditHandler.List)
	}

	log.Printf("SSO server starting on %s", cfg.ServerAddr)
	log.Printf("Issuer: %s", cfg.BaseURL)
	log.Printf("Frontend: %s", cfg.FrontendURL)
	log.Printf("Default admin: %s (check logs for password if first run)", cfg.DefaultAdminEmail)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	m := graceful.NewManager()

	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})

	// Reap expired authorization codes and OTPs.
	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				codeService.Cleanup(ctx)
				if err := otpService.Cleanup(ctx); err != nil {
					log.Printf("Failed to cleanup expired OTPs: %v", err)
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	if cfg.EnableAuditLogging && cfg.AuditLogRetention > 0 {
		m.AddRunningJob(func(ctx context.Context) error {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()

			if deleted, err := auditService.CleanupOldLogs(cfg.AuditLogRetention); err != nil {
				log.Printf("Failed to cleanup old audit logs: %v", err)
			} else if deleted > 0 {
				log.Printf("Cleaned up %d old audit logs", deleted)
			}

			for {
				select {
				case <-ticker.C:
					if deleted, err := auditService.CleanupOldLogs(
						cfg.AuditLogRetention,
					); err != nil {
						log.Printf("Failed to cleanup old audit logs: %v", err)
					} else if deleted > 0 {
						log.Printf("Cleaned up %d old audit logs", deleted)
					}
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})

	m.AddShutdownJob(func() error {
		log.Println("Shutting down audit service...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := auditService.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down audit service: %v", err)
			return err
		}
		return nil
	})

	if clientCacheCloser != nil {
		m.AddShutdownJob(func() error {
			if err := clientCacheCloser(); err != nil {
				log.Printf("Error closing client cache: %v", err)
				return err
			}
			log.Println("Client cache closed")
			return nil
		})
	}

	<-m.Done()
}

// setupClientCache builds the client-app lookup cache. It shares the Redis
// deployment used for rate limiting when one is configured, so every
// instance of the server sees client updates at the same time.
func setupClientCache(cfg *config.Config) (cache.Cache[models.ClientApp], func() error) {
	if !cfg.ClientCacheEnabled {
		return nil, nil
	}

	if cfg.RateLimitStore == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}

		c, err := cache.NewRedisCache[models.ClientApp](rdb, "client:")
		if err != nil {
			log.Fatalf("Failed to initialize Redis client cache: %v", err)
		}
		log.Printf("Client cache: redis (addr=%s, db=%d, ttl=%s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.ClientCacheTTL)
		return c, c.Close
	}

	c := cache.NewMemoryCache[models.ClientApp]()
	log.Printf("Client cache: memory (ttl=%s, single instance only)", cfg.ClientCacheTTL)
	return c, c.Close
}

// setupGoogleHandler wires federated Google login when configured. Returns
// nil when disabled, which leaves the routes unregistered.
func setupGoogleHandler(
	cfg *config.Config,
	authService *services.AuthService,
	issuer *token.Issuer,
	authHandler *handlers.AuthHandler,
	recorder metrics.Recorder,
) *handlers.GoogleHandler {
	if !cfg.GoogleOAuthEnabled {
		return nil
	}

	httpClient, err := client.NewUpstreamClient(cfg.GoogleTimeout)
	if err != nil {
		log.Fatalf("Failed to create Google HTTP client: %v", err)
	}

	provider := auth.NewGoogleProvider(auth.GoogleProviderConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, httpClient)

	log.Printf("Google login configured: redirect=%s", cfg.GoogleRedirectURL)
	return handlers.NewGoogleHandler(provider, authService, issuer, authHandler, recorder, cfg)
}

// rateLimitMiddlewares holds per-endpoint rate limiters.
type rateLimitMiddlewares struct {
	login gin.HandlerFunc
	token gin.HandlerFunc
	otp   gin.HandlerFunc
}

// setupRateLimiting configures rate limiting based on configuration.
// Returns pass-through middlewares when rate limiting is disabled.
func setupRateLimiting(cfg *config.Config) rateLimitMiddlewares {
	if !cfg.EnableRateLimit {
		noop := func(c *gin.Context) { c.Next() }
		return rateLimitMiddlewares{login: noop, token: noop, otp: noop}
	}

	log.Printf("Rate limiting enabled (store: %s)", cfg.RateLimitStore)

	createLimiter := func(requestsPerMinute int, endpoint string) gin.HandlerFunc {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: requestsPerMinute,
			StoreType:         middleware.RateLimitStoreType(cfg.RateLimitStore),
			RedisAddr:         cfg.RedisAddr,
			RedisPassword:     cfg.RedisPassword,
			RedisDB:           cfg.RedisDB,
			CleanupInterval:   cfg.RateLimitCleanup,
		})
		if err != nil {
			log.Fatalf("Failed to create rate limiter for %s: %v", endpoint, err)
		}
		return limiter
	}

	return rateLimitMiddlewares{
		login: createLimiter(cfg.LoginRateLimit, "/auth/login"),
		token: createLimiter(cfg.TokenRateLimit, "/oauth/token"),
		otp:   createLimiter(cfg.OTPRateLimit, "/auth/forgot-password"),
	}
}

// setupGinMode sets Gin mode based on environment configuration.
func setupGinMode(cfg *config.Config) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
		log.Printf("Gin mode: Release (production)")
		return
	}
	gin.SetMode(gin.DebugMode)
	log.Printf("Gin mode: Debug (development)")
}
