package database

import (
	"gorm.io/gorm"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Order{},
		&domain.OrderItem{},
		&domain.PaymentToken{},
		&domain.ScanAuditEntry{},
	)
}
