package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/ratelimit"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/repository"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/security"
)

// Credential identifies a token by exactly one of its two forms: the full
// opaque token (optionally carrying its ".signature" suffix as encoded in the
// QR image) or the human-typed short code.
type Credential struct {
	TokenID   string
	ShortCode string
}

type OrderPreviewItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPreview is the read-only view a scanning device gets before payment.
type OrderPreview struct {
	OrderID     uint               `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	Status      domain.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Items       []OrderPreviewItem `json:"items"`
}

type ScanResult struct {
	Preview   OrderPreview `json:"order_preview"`
	TokenID   string       `json:"token_id"`
	ShortCode string       `json:"short_code"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// ScanValidator checks a credential against the token store without consuming
// it. Scanning is side-effect-free on the token and may repeat freely within
// the device's rate limit. Every call writes exactly one audit entry.
type ScanValidator struct {
	tokens        repository.PaymentTokenRepository
	orders        repository.OrderRepository
	audit         repository.ScanAuditRepository
	limiter       ratelimit.Limiter
	signingSecret string
	logger        *slog.Logger
	now           func() time.Time
}

func NewScanValidator(
	tokens repository.PaymentTokenRepository,
	orders repository.OrderRepository,
	audit repository.ScanAuditRepository,
	limiter ratelimit.Limiter,
	signingSecret string,
	logger *slog.Logger,
) *ScanValidator {
	return &ScanValidator{
		tokens:        tokens,
		orders:        orders,
		audit:         audit,
		limiter:       limiter,
		signingSecret: signingSecret,
		logger:        logger,
		now:           time.Now,
	}
}

func (v *ScanValidator) Scan(ctx context.Context, cred Credential, deviceID string, userID *uint) (*ScanResult, error) {
	started := v.now().UTC()
	rec := &auditRecorder{
		audit:    v.audit,
		logger:   v.logger,
		action:   domain.ScanActionScan,
		deviceID: deviceID,
		userID:   userID,
		started:  started,
		now:      v.now,
	}

	decision, err := v.limiter.Allow(ctx, deviceID)
	if err != nil {
		// Limiter backend trouble must not open the scan path unaudited.
		rec.write(ctx, domain.ScanStatusFailed, map[string]any{"reason": "rate limiter unavailable"})
		return nil, wrapFlowError(CodeScanFailed, "scan could not be processed", err)
	}
	if !decision.Allowed {
		rec.write(ctx, domain.ScanStatusRateLimited, nil)
		return nil, &FlowError{Code: CodeRateLimited, Message: "too many scans from this device", RetryAfter: decision.RetryAfter}
	}

	tokenID, signature := splitCredential(cred.TokenID)
	var token *domain.PaymentToken
	if tokenID != "" {
		token, err = v.tokens.FindByTokenID(ctx, tokenID)
	} else {
		token, err = v.tokens.FindByShortCode(ctx, strings.ToUpper(strings.TrimSpace(cred.ShortCode)))
	}
	if err != nil {
		if errors.Is(err, repository.ErrPaymentTokenNotFound) {
			rec.write(ctx, domain.ScanStatusInvalid, nil)
			return nil, newFlowError(CodeInvalid, "unknown payment credential")
		}
		rec.write(ctx, domain.ScanStatusFailed, nil)
		return nil, wrapFlowError(CodeScanFailed, "scan could not be processed", err)
	}
	rec.orderID = token.OrderID
	rec.tokenID = token.TokenID

	if signature != "" && !security.VerifyPaymentTokenSignature(signature, token.TokenID, token.OrderID, token.ExpiresAt, v.signingSecret) {
		rec.write(ctx, domain.ScanStatusInvalid, map[string]any{"reason": "signature mismatch"})
		return nil, newFlowError(CodeInvalid, "credential failed integrity check")
	}
	if token.Consumed {
		rec.write(ctx, domain.ScanStatusDuplicate, nil)
		return nil, newFlowError(CodeDuplicate, "token already funded a payment")
	}
	if token.Expired(v.now().UTC()) {
		rec.write(ctx, domain.ScanStatusExpired, nil)
		return nil, newFlowError(CodeExpired, "token has expired")
	}

	order, err := v.orders.FindByID(ctx, token.OrderID)
	if err != nil {
		rec.write(ctx, domain.ScanStatusFailed, nil)
		return nil, wrapFlowError(CodeScanFailed, "scan could not be processed", err)
	}

	rec.write(ctx, domain.ScanStatusSuccess, nil)
	return &ScanResult{
		Preview:   previewOf(order),
		TokenID:   token.TokenID,
		ShortCode: token.ShortCode,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// splitCredential peels an optional ".signature" suffix off a long-form
// credential. Token ids are base64url and never contain dots.
func splitCredential(raw string) (tokenID, signature string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		return raw[:i], raw[i+1:]
	}
	return raw, ""
}

func previewOf(order *domain.Order) OrderPreview {
	items := make([]OrderPreviewItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, OrderPreviewItem{Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return OrderPreview{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}
}

// auditRecorder writes the single audit entry each scan/confirm call owes,
// whatever the outcome. Audit persistence failures are logged loudly but do
// not change the business result; the attempt itself was already decided.
type auditRecorder struct {
	audit         repository.ScanAuditRepository
	logger        *slog.Logger
	action        domain.ScanAction
	orderID       uint
	tokenID       string
	deviceID      string
	userID        *uint
	paymentMethod string
	started       time.Time
	now           func() time.Time
}

func (r *auditRecorder) write(ctx context.Context, status domain.ScanStatus, details map[string]any) {
	entry := &domain.ScanAuditEntry{
		OrderID:          r.orderID,
		TokenID:          r.tokenID,
		DeviceID:         r.deviceID,
		UserID:           r.userID,
		Action:           r.action,
		Status:           status,
		PaymentMethod:    r.paymentMethod,
		ProcessingTimeMs: r.now().UTC().Sub(r.started).Milliseconds(),
		ScanTimestamp:    r.started,
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = raw
		}
	}
	if err := r.audit.Append(ctx, entry); err != nil {
		r.logger.Error("audit write failed",
			"action", string(r.action),
			"status", string(status),
			"order_id", r.orderID,
			"device_id", r.deviceID,
			"error", fmt.Sprintf("%v", err),
		)
	}
}
