package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/ratelimit"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/repository"
)

const testSigningSecret = "qr-signing-secret-for-tests"

type testEnv struct {
	db     *gorm.DB
	tokens repository.PaymentTokenRepository
	orders repository.OrderRepository
	audit  repository.ScanAuditRepository
	logger *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Order{},
		&domain.OrderItem{},
		&domain.PaymentToken{},
		&domain.ScanAuditEntry{},
	); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return &testEnv{
		db:     db,
		tokens: repository.NewPaymentTokenRepository(db),
		orders: repository.NewOrderRepository(db),
		audit:  repository.NewScanAuditRepository(db),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (e *testEnv) createOrder(t *testing.T, number string, status domain.OrderStatus) *domain.Order {
	t.Helper()
	order := &domain.Order{
		OrderNumber: number,
		Status:      status,
		TotalAmount: decimal.NewFromFloat(18.75),
		Items: []domain.OrderItem{
			{Name: "espresso", Quantity: 1, UnitPrice: decimal.NewFromFloat(3.75)},
			{Name: "sandwich", Quantity: 1, UnitPrice: decimal.NewFromFloat(15.00)},
		},
	}
	if err := e.orders.Create(context.Background(), order); err != nil {
		t.Fatalf("create order %s: %v", number, err)
	}
	return order
}

func (e *testEnv) newIssuer(ttl time.Duration) *TokenIssuer {
	return NewTokenIssuer(e.tokens, e.orders, testSigningSecret, ttl, 6, e.logger)
}

func (e *testEnv) auditEntries(t *testing.T, orderID uint) []domain.ScanAuditEntry {
	t.Helper()
	entries, err := e.audit.ListByOrderID(context.Background(), orderID, 100)
	if err != nil {
		t.Fatalf("list audit entries: %v", err)
	}
	return entries
}

func allowAll() ratelimit.Limiter {
	return ratelimit.NewTokenBucketLimiter(ratelimit.Policy{RefillPerSec: 1000, Burst: 1000})
}

type denyLimiter struct{ retryAfter time.Duration }

func (d denyLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfter: d.retryAfter}, nil
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, fmt.Errorf("limiter backend down")
}

func expectCode(t *testing.T, err error, code FailureCode) *FlowError {
	t.Helper()
	fe, ok := AsFlowError(err)
	if !ok {
		t.Fatalf("expected FlowError with code %s, got %v", code, err)
	}
	if fe.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, fe.Code, err)
	}
	return fe
}
