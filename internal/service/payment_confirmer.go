package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/ratelimit"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/repository"
)

type ConfirmRequest struct {
	OrderID        uint
	TokenID        string
	DeviceID       string
	UserID         *uint
	PaymentMethod  string
	TransactionID  string
	AmountReceived decimal.Decimal
	Notes          string
}

type ConfirmResult struct {
	Order       *domain.Order `json:"order"`
	TokenID     string        `json:"token_id"`
	ConfirmedAt time.Time     `json:"confirmed_at"`
}

// PaymentConfirmer performs the only operation that mutates token state. The
// consumed-check and consumed-set happen as one conditional update in the
// token store, so concurrent confirms against the same token produce exactly
// one success.
type PaymentConfirmer struct {
	tokens  repository.PaymentTokenRepository
	orders  repository.OrderRepository
	audit   repository.ScanAuditRepository
	limiter ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

func NewPaymentConfirmer(
	tokens repository.PaymentTokenRepository,
	orders repository.OrderRepository,
	audit repository.ScanAuditRepository,
	limiter ratelimit.Limiter,
	logger *slog.Logger,
) *PaymentConfirmer {
	return &PaymentConfirmer{
		tokens:  tokens,
		orders:  orders,
		audit:   audit,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

func (c *PaymentConfirmer) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	started := c.now().UTC()
	rec := &auditRecorder{
		audit:         c.audit,
		logger:        c.logger,
		action:        domain.ScanActionConfirmPayment,
		orderID:       req.OrderID,
		tokenID:       req.TokenID,
		deviceID:      req.DeviceID,
		userID:        req.UserID,
		paymentMethod: req.PaymentMethod,
		started:       started,
		now:           c.now,
	}

	// Anonymous devices may scan, but confirming a payment needs a known
	// operator behind it.
	if req.UserID == nil {
		rec.write(ctx, domain.ScanStatusUnauthorized, nil)
		return nil, newFlowError(CodeUnauthorized, "payment confirmation requires an authenticated operator")
	}

	decision, err := c.limiter.Allow(ctx, req.DeviceID)
	if err != nil {
		rec.write(ctx, domain.ScanStatusFailed, map[string]any{"reason": "rate limiter unavailable"})
		return nil, wrapFlowError(CodeConfirmationFailed, "confirmation could not be processed", err)
	}
	if !decision.Allowed {
		rec.write(ctx, domain.ScanStatusRateLimited, nil)
		return nil, &FlowError{Code: CodeRateLimited, Message: "too many confirmations from this device", RetryAfter: decision.RetryAfter}
	}

	token, err := c.tokens.FindByTokenID(ctx, req.TokenID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentTokenNotFound) {
			rec.write(ctx, domain.ScanStatusInvalid, nil)
			return nil, newFlowError(CodeInvalid, "unknown payment token")
		}
		rec.write(ctx, domain.ScanStatusFailed, nil)
		return nil, wrapFlowError(CodeConfirmationFailed, "confirmation could not be processed", err)
	}
	rec.orderID = token.OrderID

	// The token's order binding is immutable after issuance, so checking it
	// before the claim is equivalent to re-checking afterwards and never
	// burns the token on a request addressed to the wrong order.
	if token.OrderID != req.OrderID {
		rec.write(ctx, domain.ScanStatusInvalid, map[string]any{"reason": "token order mismatch", "request_order_id": req.OrderID})
		return nil, newFlowError(CodeInvalid, "token does not authorize this order")
	}

	now := c.now().UTC()
	if token.Expired(now) {
		rec.write(ctx, domain.ScanStatusExpired, nil)
		return nil, newFlowError(CodeExpired, "token has expired")
	}

	if err := c.tokens.Claim(ctx, req.TokenID, req.DeviceID, req.UserID, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrPaymentTokenConsumed):
			rec.write(ctx, domain.ScanStatusDuplicate, nil)
			return nil, newFlowError(CodeDuplicate, "token already funded a payment")
		case errors.Is(err, repository.ErrPaymentTokenNotFound):
			rec.write(ctx, domain.ScanStatusInvalid, nil)
			return nil, newFlowError(CodeInvalid, "unknown payment token")
		default:
			rec.write(ctx, domain.ScanStatusFailed, nil)
			return nil, wrapFlowError(CodeConfirmationFailed, "confirmation could not be processed", err)
		}
	}

	transactionID := req.TransactionID
	if transactionID == "" {
		transactionID = uuid.NewString()
	}
	payment := repository.OrderPayment{
		Method:         req.PaymentMethod,
		TransactionID:  transactionID,
		AmountReceived: req.AmountReceived,
		Notes:          req.Notes,
		PaidAt:         now,
	}
	if err := c.orders.RecordPayment(ctx, req.OrderID, payment); err != nil {
		// The claim is NOT rolled back: re-opening the token would allow a
		// second physical payment attempt against an order that may already
		// have been charged. Escalate for reconciliation instead.
		c.logger.Error("payment recording failed after token claim; manual reconciliation required",
			"order_id", req.OrderID,
			"token_id", req.TokenID,
			"device_id", req.DeviceID,
			"transaction_id", transactionID,
			"error", err.Error(),
		)
		rec.write(ctx, domain.ScanStatusFailed, map[string]any{"reason": "order payment recording failed", "reconciliation": true})
		return nil, wrapFlowError(CodeConfirmationFailed, "payment could not be recorded against the order", err)
	}

	order, err := c.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		rec.write(ctx, domain.ScanStatusFailed, nil)
		return nil, wrapFlowError(CodeConfirmationFailed, "payment recorded but order reload failed", err)
	}

	rec.write(ctx, domain.ScanStatusSuccess, nil)
	return &ConfirmResult{Order: order, TokenID: req.TokenID, ConfirmedAt: now}, nil
}
