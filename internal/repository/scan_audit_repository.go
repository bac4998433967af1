package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/observability"
)

// ScanAuditRepository is append-only: entries are written once and never
// updated. Retention is enforced by DeleteOlderThan, not by business logic.
type ScanAuditRepository interface {
	Append(ctx context.Context, entry *domain.ScanAuditEntry) error
	ListByOrderID(ctx context.Context, orderID uint, limit int) ([]domain.ScanAuditEntry, error)
	ListByDeviceID(ctx context.Context, deviceID string, limit int) ([]domain.ScanAuditEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormScanAuditRepository struct{ db *gorm.DB }

func NewScanAuditRepository(db *gorm.DB) ScanAuditRepository {
	return &GormScanAuditRepository{db: db}
}

func (r *GormScanAuditRepository) Append(ctx context.Context, entry *domain.ScanAuditEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "scan_audit", "append", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "scan_audit", "append", "success")
	return nil
}

func (r *GormScanAuditRepository) ListByOrderID(ctx context.Context, orderID uint, limit int) ([]domain.ScanAuditEntry, error) {
	return r.list(ctx, "list_by_order", "order_id = ?", orderID, limit)
}

func (r *GormScanAuditRepository) ListByDeviceID(ctx context.Context, deviceID string, limit int) ([]domain.ScanAuditEntry, error) {
	return r.list(ctx, "list_by_device", "device_id = ?", deviceID, limit)
}

func (r *GormScanAuditRepository) list(ctx context.Context, op, cond string, value any, limit int) ([]domain.ScanAuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []domain.ScanAuditEntry
	err := r.db.WithContext(ctx).
		Where(cond, value).
		Order("scan_timestamp desc").Order("id desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "scan_audit", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "scan_audit", op, "success")
	return entries, nil
}

func (r *GormScanAuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("scan_timestamp < ?", cutoff).
		Delete(&domain.ScanAuditEntry{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "scan_audit", "retention_delete", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "scan_audit", "retention_delete", "success")
	return res.RowsAffected, nil
}
