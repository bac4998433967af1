package domain

import "time"

// PaymentToken is a short-lived, single-use credential authorizing exactly one
// payment confirmation for one order. At most one non-expired, non-consumed
// token exists per order; issuing a new token force-expires the previous one.
type PaymentToken struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	TokenID            string     `gorm:"size:64;uniqueIndex;not null" json:"token_id"`
	ShortCode          string     `gorm:"size:8;index;not null" json:"short_code"`
	Signature          string     `gorm:"size:64;not null" json:"-"`
	OrderID            uint       `gorm:"index;not null" json:"order_id"`
	IssuedAt           time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt          time.Time  `gorm:"index;not null" json:"expires_at"`
	Consumed           bool       `gorm:"not null;default:false;index" json:"consumed"`
	ConsumedAt         *time.Time `json:"consumed_at,omitempty"`
	ConsumedByDeviceID string     `gorm:"size:128" json:"consumed_by_device_id,omitempty"`
	ConsumedByUserID   *uint      `json:"consumed_by_user_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (t *PaymentToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Valid reports whether the token can still authorize a payment.
func (t *PaymentToken) Valid(now time.Time) bool {
	return !t.Consumed && !t.Expired(now)
}
