// Package main provides the API gateway entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/infrastructure/logging"
	"github.com/R3E-Network/api-gateway/infrastructure/metrics"
	"github.com/R3E-Network/api-gateway/infrastructure/middleware"

	"github.com/R3E-Network/api-gateway/internal/auth"
	"github.com/R3E-Network/api-gateway/internal/autoblock"
	"github.com/R3E-Network/api-gateway/internal/breaker"
	"github.com/R3E-Network/api-gateway/internal/cache"
	"github.com/R3E-Network/api-gateway/internal/config"
	"github.com/R3E-Network/api-gateway/internal/janitor"
	"github.com/R3E-Network/api-gateway/internal/localcache"
	"github.com/R3E-Network/api-gateway/internal/platform/database"
	"github.com/R3E-Network/api-gateway/internal/platform/migrations"
	"github.com/R3E-Network/api-gateway/internal/proxy"
	"github.com/R3E-Network/api-gateway/internal/ratelimiter"
	"github.com/R3E-Network/api-gateway/internal/repository"
	"github.com/R3E-Network/api-gateway/internal/routing"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("CRITICAL: %v", err)
	}

	logger := logging.New("gateway", cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("CRITICAL: open database: %v", err)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatalf("CRITICAL: apply migrations: %v", err)
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("CRITICAL: connect cache: %v", err)
	}
	defer cacheClient.Close()

	users := repository.NewUserStore(db)
	apiKeys := repository.NewAPIKeyStore(db)
	ipRules := repository.NewIPRuleStore(db)
	policies := repository.NewPolicyStore(db)
	routes := repository.NewRouteStore(db)
	auditLogs := repository.NewAuditLogStore(db)

	signer := auth.NewSigner(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authenticator := auth.New(signer, cacheClient, users, apiKeys)

	var metricsCollector *metrics.Metrics
	if metrics.Enabled() {
		metricsCollector = metrics.Init("gateway")
	}

	router := routing.New(routes, localcache.New(time.Minute))
	limiter := ratelimiter.New(cacheClient)
	circuitBreaker := breaker.New(cacheClient)
	backendProxy := proxy.New(circuitBreaker, cfg.UpstreamTimeout, metricsCollector)
	blocker := autoblock.New(cacheClient, ipRules, auditLogs, metricsCollector)

	cleanup := janitor.New(ipRules, router, logger)
	janitorSpec := fmt.Sprintf("@every %s", cfg.JanitorInterval)
	if err := cleanup.Start(janitorSpec); err != nil {
		log.Fatalf("CRITICAL: start janitor: %v", err)
	}
	defer cleanup.Stop()

	httpRouter := mux.NewRouter()
	wireAmbientMiddleware(httpRouter, cfg, logger, metricsCollector)
	wireHealthRoutes(httpRouter, db, cacheClient)
	wireAuthRoutes(httpRouter, users, authenticator)
	wireAdminRoutes(httpRouter, users, apiKeys, routes, policies, ipRules, auditLogs, router, authenticator, blocker, logger)
	wireProxyRoute(httpRouter, router, ipRules, policies, limiter, blocker, authenticator, backendProxy, logger, cfg, metricsCollector)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpRouter,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	shutdown := middleware.NewGracefulShutdown(server, 30*time.Second)
	shutdown.OnShutdown(func() { cleanup.Stop() })

	go func() {
		logger.Infof("gateway starting on port %d", cfg.Port)
		var serveErr error
		switch cfg.TLSMode {
		case "off":
			serveErr = server.ListenAndServe()
		case "tls", "mtls":
			serveErr = server.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Fatalf("server error: %v", serveErr)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdown.Shutdown()
}

// wireAmbientMiddleware installs the ambient stack (logging, recovery,
// metrics, CORS, body limits, security headers, timeouts) around every
// route, mirroring the teacher's layering order.
func wireAmbientMiddleware(router *mux.Router, cfg *config.Config, logger *logging.Logger, collector *metrics.Metrics) {
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.NewRecoveryMiddleware(logger).Handler)

	if collector != nil {
		router.Use(middleware.MetricsMiddleware("gateway", collector))
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	router.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{
		AllowedOrigins:         cfg.CORSAllowedOrigins,
		AllowedMethods:         []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:         []string{"Content-Type", "Authorization", "X-API-Key", "X-Trace-ID"},
		ExposedHeaders:         []string{"X-Trace-ID", "X-Request-Id"},
		AllowCredentials:       true,
		MaxAgeSeconds:          3600,
		PreflightStatus:        http.StatusOK,
		RejectDisallowedOrigin: true,
	}).Handler)

	router.Use(middleware.NewBodyLimitMiddleware(0).Handler)
	router.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)
	router.Use(middleware.NewTimeoutMiddleware(cfg.UpstreamTimeout + 5*time.Second).Handler)
}

func wireHealthRoutes(router *mux.Router, db pinger, c *cache.Client) {
	router.HandleFunc("/health", healthHandler(db, c)).Methods(http.MethodGet)
	router.HandleFunc("/health/detailed", detailedHealthHandler(db, c)).Methods(http.MethodGet)
}

func wireAuthRoutes(router *mux.Router, users *repository.UserStore, authenticator *auth.Authenticator) {
	auth := router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/signup", signupHandler(users, authenticator)).Methods(http.MethodPost)
	auth.HandleFunc("/login", loginHandler(users, authenticator)).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", refreshHandler(authenticator)).Methods(http.MethodPost)
	auth.HandleFunc("/logout", logoutHandler(authenticator)).Methods(http.MethodPost)
}

// wireAdminRoutes registers the minimal admin CRUD surface (§6.2), gated by
// the same bearer-token authentication as the consumer surface plus a role
// check, rather than a separate auth mechanism.
func wireAdminRoutes(
	router *mux.Router,
	users *repository.UserStore,
	apiKeys *repository.APIKeyStore,
	routes *repository.RouteStore,
	policies *repository.PolicyStore,
	ipRules *repository.IPRuleStore,
	auditLogs *repository.AuditLogStore,
	routeResolver *routing.Router,
	authenticator *auth.Authenticator,
	blocker *autoblock.Blocker,
	logger *logging.Logger,
) {
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.NewAuthMiddleware(authenticator, blocker, logger).Handler)
	admin.Use(requireAdminRoleMiddleware)

	admin.HandleFunc("/users", listUsersHandler(users)).Methods(http.MethodGet)
	admin.HandleFunc("/users", createUserHandler(users)).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}", getUserHandler(users)).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}", patchUserHandler(users)).Methods(http.MethodPatch)
	admin.HandleFunc("/users/{id}", deleteUserHandler(users)).Methods(http.MethodDelete)
	admin.HandleFunc("/users/{id}/revoke", revokeUserHandler(users, auditLogs)).Methods(http.MethodPost)

	admin.HandleFunc("/api-keys", listAPIKeysHandler(apiKeys)).Methods(http.MethodGet)
	admin.HandleFunc("/api-keys", createAPIKeyHandler(apiKeys)).Methods(http.MethodPost)
	admin.HandleFunc("/api-keys/{id}", revokeAPIKeyHandler(apiKeys)).Methods(http.MethodDelete)

	admin.HandleFunc("/routes", listRoutesHandler(routes)).Methods(http.MethodGet)
	admin.HandleFunc("/routes", createRouteHandler(routes, routeResolver)).Methods(http.MethodPost)
	admin.HandleFunc("/routes/{id}", getRouteHandler(routes)).Methods(http.MethodGet)
	admin.HandleFunc("/routes/{id}", patchRouteHandler(routes, routeResolver)).Methods(http.MethodPatch)
	admin.HandleFunc("/routes/{id}", deleteRouteHandler(routes, routeResolver)).Methods(http.MethodDelete)

	admin.HandleFunc("/routes/{id}/policies", listPoliciesHandler(policies)).Methods(http.MethodGet)
	admin.HandleFunc("/routes/{id}/policies", createPolicyHandler(policies)).Methods(http.MethodPost)
	admin.HandleFunc("/policies/{id}", patchPolicyHandler(policies)).Methods(http.MethodPatch)
	admin.HandleFunc("/policies/{id}", deletePolicyHandler(policies)).Methods(http.MethodDelete)

	admin.HandleFunc("/ip-rules", listIPRulesHandler(ipRules)).Methods(http.MethodGet)
	admin.HandleFunc("/ip-rules", createIPRuleHandler(ipRules, auditLogs)).Methods(http.MethodPost)
	admin.HandleFunc("/ip-rules/{id}", deleteIPRuleHandler(ipRules, auditLogs)).Methods(http.MethodDelete)

	admin.HandleFunc("/audit-logs", listAuditLogsHandler(auditLogs)).Methods(http.MethodGet)
}

// requireAdminRoleMiddleware runs after AuthMiddleware has populated the
// request context and rejects anything but an admin/super_admin role.
func requireAdminRoleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireAdminRole(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// wireProxyRoute registers the consumer-facing catch-all and threads it
// through the domain-specific pipeline stages in the order the request
// pipeline defines: parse → IP rules → authenticate → rate limit → proxy →
// response transform. Logging/metrics are ambient and already wrap every
// route, including this one.
func wireProxyRoute(
	router *mux.Router,
	routeResolver *routing.Router,
	ipRules *repository.IPRuleStore,
	policies *repository.PolicyStore,
	limiter *ratelimiter.Limiter,
	blocker *autoblock.Blocker,
	authenticator *auth.Authenticator,
	backendProxy *proxy.Proxy,
	logger *logging.Logger,
	cfg *config.Config,
	metricsCollector *metrics.Metrics,
) {
	parser := middleware.NewParserMiddleware(true)
	ipGuard := middleware.NewIPGuardMiddleware(ipRules, cfg.IPAllowlistMode, logger)
	authMiddleware := middleware.NewAuthMiddleware(authenticator, blocker, logger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(routeResolver, policies, limiter, blocker, logger, metricsCollector)
	transformer := middleware.NewResponseTransformer(middleware.DefaultSecurityHeaders())
	proxyMiddleware := middleware.NewProxyMiddleware(backendProxy, transformer, logger)

	chain := parser.Handler(
		ipGuard.Handler(
			authMiddleware.Handler(
				rateLimitMiddleware.Handler(
					proxyMiddleware.Handler(nil),
				),
			),
		),
	)

	router.PathPrefix("/").Handler(chain)
}
