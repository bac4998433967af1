package domain

import (
	"time"

	"gorm.io/datatypes"
)

type ScanAction string

const (
	ScanActionScan           ScanAction = "SCAN"
	ScanActionConfirmPayment ScanAction = "CONFIRM_PAYMENT"
)

type ScanStatus string

const (
	ScanStatusSuccess      ScanStatus = "SUCCESS"
	ScanStatusFailed       ScanStatus = "FAILED"
	ScanStatusExpired      ScanStatus = "EXPIRED"
	ScanStatusInvalid      ScanStatus = "INVALID"
	ScanStatusDuplicate    ScanStatus = "DUPLICATE"
	ScanStatusUnauthorized ScanStatus = "UNAUTHORIZED"
	ScanStatusRateLimited  ScanStatus = "RATE_LIMITED"
)

// ScanAuditEntry is the immutable record of one scan or confirm attempt.
// Every call into the scan validator or payment confirmer writes exactly one
// entry, success or failure. Entries are never updated after creation.
type ScanAuditEntry struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	OrderID          uint           `gorm:"index" json:"order_id"`
	TokenID          string         `gorm:"size:64;index" json:"token_id"`
	DeviceID         string         `gorm:"size:128;index;not null" json:"device_id"`
	UserID           *uint          `gorm:"index" json:"user_id,omitempty"`
	Action           ScanAction     `gorm:"size:32;not null" json:"action"`
	Status           ScanStatus     `gorm:"size:32;not null;index" json:"status"`
	PaymentMethod    string         `gorm:"size:32" json:"payment_method,omitempty"`
	ProcessingTimeMs int64          `gorm:"not null" json:"processing_time_ms"`
	ScanTimestamp    time.Time      `gorm:"index;not null" json:"scan_timestamp"`
	Details          datatypes.JSON `json:"details,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
