package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/app"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/config"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/database"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/http/handler"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/http/middleware"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/http/router"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/observability"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/ratelimit"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/repository"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/security"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/service"
)

// ScanLimiter and ConfirmLimiter are distinct types so wire can tell the two
// device budgets apart.
type ScanLimiter ratelimit.Limiter

type ConfirmLimiter ratelimit.Limiter

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	observability.NewLogger,
	provideRuntime,
)

var DatabaseSet = wire.NewSet(provideDB)

var RepositorySet = wire.NewSet(
	repository.NewPaymentTokenRepository,
	repository.NewOrderRepository,
	repository.NewScanAuditRepository,
)

var SecuritySet = wire.NewSet(provideJWTManager)

var ServiceSet = wire.NewSet(
	provideRedisClient,
	provideScanLimiter,
	provideConfirmLimiter,
	provideTokenIssuer,
	provideScanValidator,
	providePaymentConfirmer,
	provideCleanupJob,
)

var HTTPSet = wire.NewSet(
	handler.NewQRPaymentHandler,
	handler.NewOrderHandler,
	handler.NewScanAuditHandler,
	provideAPIRateLimiter,
	provideRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

func provideRuntime(cfg *config.Config, logger *slog.Logger) (*observability.Runtime, error) {
	return observability.InitRuntime(context.Background(), cfg, logger)
}

func provideDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)
}

// Device budgets are Redis-backed when an address is configured so every
// instance sees the same buckets; otherwise they stay in process memory.
func provideScanLimiter(cfg *config.Config, client redis.UniversalClient) ScanLimiter {
	policy := ratelimit.PerMinute(cfg.ScanRateLimitPerMin, cfg.ScanBurst)
	if client != nil {
		return ratelimit.NewRedisTokenBucketLimiter(client, "qr_scan", policy)
	}
	return ratelimit.NewTokenBucketLimiter(policy)
}

func provideConfirmLimiter(cfg *config.Config, client redis.UniversalClient) ConfirmLimiter {
	policy := ratelimit.PerMinute(cfg.ConfirmRateLimitPerMin, cfg.ConfirmBurst)
	if client != nil {
		return ratelimit.NewRedisTokenBucketLimiter(client, "qr_confirm", policy)
	}
	return ratelimit.NewTokenBucketLimiter(policy)
}

func provideTokenIssuer(
	tokens repository.PaymentTokenRepository,
	orders repository.OrderRepository,
	cfg *config.Config,
	logger *slog.Logger,
) *service.TokenIssuer {
	return service.NewTokenIssuer(tokens, orders, cfg.TokenSigningSecret, cfg.TokenTTL, cfg.ShortCodeLength, logger)
}

func provideScanValidator(
	tokens repository.PaymentTokenRepository,
	orders repository.OrderRepository,
	audit repository.ScanAuditRepository,
	limiter ScanLimiter,
	cfg *config.Config,
	logger *slog.Logger,
) *service.ScanValidator {
	return service.NewScanValidator(tokens, orders, audit, limiter, cfg.TokenSigningSecret, logger)
}

func providePaymentConfirmer(
	tokens repository.PaymentTokenRepository,
	orders repository.OrderRepository,
	audit repository.ScanAuditRepository,
	limiter ConfirmLimiter,
	logger *slog.Logger,
) *service.PaymentConfirmer {
	return service.NewPaymentConfirmer(tokens, orders, audit, limiter, logger)
}

func provideCleanupJob(
	tokens repository.PaymentTokenRepository,
	audit repository.ScanAuditRepository,
	cfg *config.Config,
	logger *slog.Logger,
) *service.CleanupJob {
	return service.NewCleanupJob(tokens, audit, logger, cfg.TokenSweepInterval, cfg.TokenSweepAge, cfg.AuditRetention)
}

func provideAPIRateLimiter(cfg *config.Config, jwtMgr *security.JWTManager, client redis.UniversalClient) *middleware.RateLimiter {
	window := middleware.NewLocalFixedWindowLimiter()
	mode := middleware.FailClosed
	scope := "local"
	if client != nil {
		window = middleware.NewRedisFixedWindowLimiter(client, "api_rl")
		mode = middleware.FailOpen
		scope = "redis"
	}
	return middleware.NewRateLimiterWith(window, cfg.APIRateLimitPerMin, time.Minute, mode, scope, middleware.SubjectOrIPKeyFunc(jwtMgr))
}

func provideRouter(
	jwtMgr *security.JWTManager,
	apiLimiter *middleware.RateLimiter,
	qrHandler *handler.QRPaymentHandler,
	orderHandler *handler.OrderHandler,
	auditHandler *handler.ScanAuditHandler,
) *chi.Mux {
	return router.New(jwtMgr, apiLimiter, qrHandler, orderHandler, auditHandler)
}

func provideHTTPServer(cfg *config.Config, mux *chi.Mux) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
