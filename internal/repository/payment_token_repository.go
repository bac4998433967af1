package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/observability"
)

var (
	ErrPaymentTokenNotFound = errors.New("payment token not found")
	ErrPaymentTokenConsumed = errors.New("payment token already consumed")
)

type PaymentTokenRepository interface {
	Create(ctx context.Context, token *domain.PaymentToken) error
	FindByTokenID(ctx context.Context, tokenID string) (*domain.PaymentToken, error)
	FindByShortCode(ctx context.Context, shortCode string) (*domain.PaymentToken, error)
	FindActiveByOrderID(ctx context.Context, orderID uint, now time.Time) (*domain.PaymentToken, error)
	InvalidateActiveByOrderID(ctx context.Context, orderID uint, now time.Time) error
	ShortCodeInUse(ctx context.Context, shortCode string, now time.Time) (bool, error)
	Claim(ctx context.Context, tokenID, deviceID string, userID *uint, now time.Time) error
	DeleteExpiredUnconsumed(ctx context.Context, before time.Time) (int64, error)
}

type GormPaymentTokenRepository struct{ db *gorm.DB }

func NewPaymentTokenRepository(db *gorm.DB) PaymentTokenRepository {
	return &GormPaymentTokenRepository{db: db}
}

func (r *GormPaymentTokenRepository) Create(ctx context.Context, token *domain.PaymentToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "payment_token", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "payment_token", "create", "success")
	return nil
}

// findBy is the single lookup both credential forms go through; only the
// probed index differs. Short codes are reused across dead tokens, so the
// newest row wins there.
func (r *GormPaymentTokenRepository) findBy(ctx context.Context, op, column, value string) (*domain.PaymentToken, error) {
	var token domain.PaymentToken
	err := r.db.WithContext(ctx).
		Where(column+" = ?", value).
		Order("issued_at desc").
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "payment_token", op, "not_found")
			return nil, ErrPaymentTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "payment_token", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "payment_token", op, "success")
	return &token, nil
}

func (r *GormPaymentTokenRepository) FindByTokenID(ctx context.Context, tokenID string) (*domain.PaymentToken, error) {
	return r.findBy(ctx, "find_by_token_id", "token_id", tokenID)
}

func (r *GormPaymentTokenRepository) FindByShortCode(ctx context.Context, shortCode string) (*domain.PaymentToken, error) {
	return r.findBy(ctx, "find_by_short_code", "short_code", shortCode)
}

func (r *GormPaymentTokenRepository) FindActiveByOrderID(ctx context.Context, orderID uint, now time.Time) (*domain.PaymentToken, error) {
	var token domain.PaymentToken
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND consumed = ? AND expires_at > ?", orderID, false, now).
		Order("issued_at desc").
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "payment_token", "find_active_by_order", "not_found")
			return nil, ErrPaymentTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "payment_token", "find_active_by_order", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "payment_token", "find_active_by_order", "success")
	return &token, nil
}

// InvalidateActiveByOrderID force-expires every live token for the order. The
// tokens are not marked consumed; they were never used.
func (r *GormPaymentTokenRepository) InvalidateActiveByOrderID(ctx context.Context, orderID uint, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.PaymentToken{}).
		Where("order_id = ? AND consumed = ? AND expires_at > ?", orderID, false, now).
		Update("expires_at", now)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "payment_token", "invalidate_active", "error")
		return res.Error
	}
	observability.RecordRepositoryOperation(ctx, "payment_token", "invalidate_active", "success")
	return nil
}

func (r *GormPaymentTokenRepository) ShortCodeInUse(ctx context.Context, shortCode string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.PaymentToken{}).
		Where("short_code = ? AND consumed = ? AND expires_at > ?", shortCode, false, now).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "payment_token", "short_code_in_use", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(ctx, "payment_token", "short_code_in_use", "success")
	return count > 0, nil
}

// Claim flips the token from unconsumed to consumed as a single conditional
// update. Exactly one caller can win: the guard on consumed=false makes the
// read-check and write one statement, so concurrent claims cannot both see
// the unconsumed state. RowsAffected==0 against an existing token means a
// rival claim already landed.
func (r *GormPaymentTokenRepository) Claim(ctx context.Context, tokenID, deviceID string, userID *uint, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.PaymentToken{}).
		Where("token_id = ? AND consumed = ?", tokenID, false).
		Updates(map[string]any{
			"consumed":              true,
			"consumed_at":           now,
			"consumed_by_device_id": deviceID,
			"consumed_by_user_id":   userID,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "payment_token", "claim", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.PaymentToken{}).Where("token_id = ?", tokenID).Count(&count).Error; err != nil {
			observability.RecordRepositoryOperation(ctx, "payment_token", "claim", "error")
			return err
		}
		if count == 0 {
			observability.RecordRepositoryOperation(ctx, "payment_token", "claim", "not_found")
			return ErrPaymentTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "payment_token", "claim", "conflict")
		return ErrPaymentTokenConsumed
	}
	observability.RecordRepositoryOperation(ctx, "payment_token", "claim", "success")
	return nil
}

// DeleteExpiredUnconsumed is the storage-hygiene sweep: long-dead tokens that
// never funded a payment are removed. Consumed tokens are retained for audit.
func (r *GormPaymentTokenRepository) DeleteExpiredUnconsumed(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("consumed = ? AND expires_at < ?", false, before).
		Delete(&domain.PaymentToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "payment_token", "sweep", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "payment_token", "sweep", "success")
	return res.RowsAffected, nil
}
