package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/observability"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderAlreadyPaid = errors.New("order already paid")
)

type OrderPayment struct {
	Method         string
	TransactionID  string
	AmountReceived decimal.Decimal
	Notes          string
	PaidAt         time.Time
}

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uint) (*domain.Order, error)
	RecordPayment(ctx context.Context, orderID uint, payment OrderPayment) error
}

type GormOrderRepository struct{ db *gorm.DB }

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "order", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "order", "create", "success")
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uint) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).Preload("Items").First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "order", "find_by_id", "not_found")
			return nil, ErrOrderNotFound
		}
		observability.RecordRepositoryOperation(ctx, "order", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "order", "find_by_id", "success")
	return &order, nil
}

// RecordPayment attaches the payment result exactly once; the guard on
// paid_at IS NULL keeps a replayed confirmation from overwriting the first.
func (r *GormOrderRepository) RecordPayment(ctx context.Context, orderID uint, payment OrderPayment) error {
	res := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND paid_at IS NULL", orderID).
		Updates(map[string]any{
			"payment_method":         payment.Method,
			"payment_transaction_id": payment.TransactionID,
			"amount_received":        payment.AmountReceived,
			"payment_notes":          payment.Notes,
			"paid_at":                payment.PaidAt,
			"status":                 domain.OrderStatusCompleted,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "order", "record_payment", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
			observability.RecordRepositoryOperation(ctx, "order", "record_payment", "error")
			return err
		}
		if count == 0 {
			observability.RecordRepositoryOperation(ctx, "order", "record_payment", "not_found")
			return ErrOrderNotFound
		}
		observability.RecordRepositoryOperation(ctx, "order", "record_payment", "conflict")
		return ErrOrderAlreadyPaid
	}
	observability.RecordRepositoryOperation(ctx, "order", "record_payment", "success")
	return nil
}
