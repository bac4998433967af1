package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer       string
	JWTAudience     string
	JWTAccessSecret string

	TokenTTL           time.Duration
	TokenSigningSecret string
	ShortCodeLength    int

	ScanRateLimitPerMin    int
	ScanBurst              int
	ConfirmRateLimitPerMin int
	ConfirmBurst           int
	APIRateLimitPerMin     int

	TokenSweepInterval time.Duration
	TokenSweepAge      time.Duration
	AuditRetention     time.Duration

	OTELTracingEnabled       bool
	OTELMetricsEnabled       bool
	OTELExporterOTLPEndpoint string
	OTELExporterOTLPInsecure bool
	OTELServiceName          string
	OTELEnvironment          string
	OTELTraceSamplingRatio   float64
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPPort:                 getEnv("HTTP_PORT", "8080"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  getEnvInt("REDIS_DB", 0),
		JWTIssuer:                getEnv("JWT_ISSUER", "garbaking-pos"),
		JWTAudience:              getEnv("JWT_AUDIENCE", "garbaking-pos-api"),
		JWTAccessSecret:          os.Getenv("JWT_ACCESS_SECRET"),
		TokenSigningSecret:       os.Getenv("QR_TOKEN_SIGNING_SECRET"),
		ShortCodeLength:          getEnvInt("QR_SHORT_CODE_LENGTH", 6),
		ScanRateLimitPerMin:      getEnvInt("QR_SCAN_RATE_LIMIT_PER_MIN", 30),
		ScanBurst:                getEnvInt("QR_SCAN_BURST", 10),
		ConfirmRateLimitPerMin:   getEnvInt("QR_CONFIRM_RATE_LIMIT_PER_MIN", 10),
		ConfirmBurst:             getEnvInt("QR_CONFIRM_BURST", 3),
		APIRateLimitPerMin:       getEnvInt("API_RATE_LIMIT_PER_MIN", 300),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", false),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", false),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "garbaking-pos"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", "development"),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
	}

	tokenTTL, err := time.ParseDuration(getEnv("QR_TOKEN_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("parse QR_TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = tokenTTL

	sweepInterval, err := time.ParseDuration(getEnv("QR_TOKEN_SWEEP_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("parse QR_TOKEN_SWEEP_INTERVAL: %w", err)
	}
	cfg.TokenSweepInterval = sweepInterval

	sweepAge, err := time.ParseDuration(getEnv("QR_TOKEN_SWEEP_AGE", "24h"))
	if err != nil {
		return nil, fmt.Errorf("parse QR_TOKEN_SWEEP_AGE: %w", err)
	}
	cfg.TokenSweepAge = sweepAge

	auditRetention, err := time.ParseDuration(getEnv("QR_AUDIT_RETENTION", "2160h"))
	if err != nil {
		return nil, fmt.Errorf("parse QR_AUDIT_RETENTION: %w", err)
	}
	cfg.AuditRetention = auditRetention

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 chars")
	}
	if len(c.TokenSigningSecret) < 16 {
		errs = append(errs, "QR_TOKEN_SIGNING_SECRET must be at least 16 chars")
	}
	if c.TokenTTL < time.Minute || c.TokenTTL > time.Hour {
		errs = append(errs, "QR_TOKEN_TTL must be between 1m and 1h")
	}
	if c.ShortCodeLength < 6 || c.ShortCodeLength > 8 {
		errs = append(errs, "QR_SHORT_CODE_LENGTH must be between 6 and 8")
	}
	if c.ScanRateLimitPerMin <= 0 {
		errs = append(errs, "QR_SCAN_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.ConfirmRateLimitPerMin <= 0 {
		errs = append(errs, "QR_CONFIRM_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.ConfirmRateLimitPerMin > c.ScanRateLimitPerMin {
		errs = append(errs, "QR_CONFIRM_RATE_LIMIT_PER_MIN must not exceed QR_SCAN_RATE_LIMIT_PER_MIN")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.TokenSweepInterval < time.Minute {
		errs = append(errs, "QR_TOKEN_SWEEP_INTERVAL must be at least 1m")
	}
	if c.TokenSweepAge < c.TokenTTL {
		errs = append(errs, "QR_TOKEN_SWEEP_AGE must be at least QR_TOKEN_TTL")
	}
	if c.AuditRetention < 24*time.Hour {
		errs = append(errs, "QR_AUDIT_RETENTION must be at least 24h")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
