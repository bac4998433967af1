package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the collaborator entity the QR payment flow records payments
// against. Lifecycle and pricing are owned elsewhere; this subsystem only
// reads orders and attaches a payment result exactly once.
type Order struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	OrderNumber          string          `gorm:"size:32;uniqueIndex;not null" json:"order_number"`
	Status               OrderStatus     `gorm:"size:24;not null;default:'pending';index" json:"status"`
	TotalAmount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	PaymentMethod        string          `gorm:"size:32" json:"payment_method,omitempty"`
	PaymentTransactionID string          `gorm:"size:64" json:"payment_transaction_id,omitempty"`
	AmountReceived       decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount_received"`
	PaymentNotes         string          `gorm:"size:512" json:"payment_notes,omitempty"`
	PaidAt               *time.Time      `gorm:"index" json:"paid_at,omitempty"`
	Items                []OrderItem     `json:"items"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"index;not null" json:"order_id"`
	Name      string          `gorm:"size:128;not null" json:"name"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

// Payable reports whether the order can still accept a payment.
func (o *Order) Payable() bool {
	if o.PaidAt != nil {
		return false
	}
	switch o.Status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing:
		return true
	default:
		return false
	}
}
