package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/repository"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/security"
)

// A fresh short code collides only with codes of currently-valid tokens, so a
// handful of retries is plenty for any realistic alphabet/length.
const maxShortCodeAttempts = 5

// IssuedToken is the caller-facing view of a minted credential.
type IssuedToken struct {
	TokenID   string    `json:"token_id"`
	ShortCode string    `json:"short_code"`
	Signature string    `json:"-"`
	OrderID   uint      `json:"order_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// QRPayload is the string encoded into the QR image: the opaque token id plus
// its integrity signature.
func (t *IssuedToken) QRPayload() string {
	return t.TokenID + "." + t.Signature
}

// TokenIssuer mints one-time payment tokens. Issuing for an order always
// force-expires any still-valid prior token, so at most one live credential
// exists per order.
type TokenIssuer struct {
	tokens        repository.PaymentTokenRepository
	orders        repository.OrderRepository
	signingSecret string
	ttl           time.Duration
	shortCodeLen  int
	logger        *slog.Logger
	now           func() time.Time
}

func NewTokenIssuer(
	tokens repository.PaymentTokenRepository,
	orders repository.OrderRepository,
	signingSecret string,
	ttl time.Duration,
	shortCodeLen int,
	logger *slog.Logger,
) *TokenIssuer {
	return &TokenIssuer{
		tokens:        tokens,
		orders:        orders,
		signingSecret: signingSecret,
		ttl:           ttl,
		shortCodeLen:  shortCodeLen,
		logger:        logger,
		now:           time.Now,
	}
}

// Issue invalidates any live token for the order and mints a new one. The
// order must exist and still be payable.
func (i *TokenIssuer) Issue(ctx context.Context, orderID uint) (*IssuedToken, error) {
	order, err := i.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, newFlowError(CodeTokenNotFound, "order not found")
		}
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if !order.Payable() {
		return nil, newFlowError(CodeRegenerationNotAllowed, "order is not in a payable state")
	}

	now := i.now().UTC()
	if err := i.tokens.InvalidateActiveByOrderID(ctx, orderID, now); err != nil {
		return nil, fmt.Errorf("invalidate prior tokens for order %d: %w", orderID, err)
	}

	tokenID, err := security.NewTokenID()
	if err != nil {
		return nil, fmt.Errorf("mint token id: %w", err)
	}
	shortCode, err := i.uniqueShortCode(ctx, now)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(i.ttl)
	token := &domain.PaymentToken{
		TokenID:   tokenID,
		ShortCode: shortCode,
		Signature: security.SignPaymentToken(tokenID, orderID, expiresAt, i.signingSecret),
		OrderID:   orderID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}
	if err := i.tokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("persist token for order %d: %w", orderID, err)
	}

	i.logger.Info("payment token issued",
		"order_id", orderID,
		"short_code", shortCode,
		"expires_at", expiresAt,
	)
	return issuedView(token), nil
}

// CurrentToken is the idempotent read: it returns the live token for the
// order, creating nothing.
func (i *TokenIssuer) CurrentToken(ctx context.Context, orderID uint) (*IssuedToken, error) {
	token, err := i.tokens.FindActiveByOrderID(ctx, orderID, i.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrPaymentTokenNotFound) {
			return nil, newFlowError(CodeTokenNotFound, "no valid token for order")
		}
		return nil, fmt.Errorf("load active token for order %d: %w", orderID, err)
	}
	return issuedView(token), nil
}

// Regenerate forces invalidate+issue. Refused when the order can no longer
// accept a payment.
func (i *TokenIssuer) Regenerate(ctx context.Context, orderID uint) (*IssuedToken, error) {
	return i.Issue(ctx, orderID)
}

func (i *TokenIssuer) uniqueShortCode(ctx context.Context, now time.Time) (string, error) {
	for attempt := 0; attempt < maxShortCodeAttempts; attempt++ {
		code, err := security.NewShortCode(i.shortCodeLen)
		if err != nil {
			return "", fmt.Errorf("mint short code: %w", err)
		}
		inUse, err := i.tokens.ShortCodeInUse(ctx, code, now)
		if err != nil {
			return "", fmt.Errorf("check short code collision: %w", err)
		}
		if !inUse {
			return code, nil
		}
		i.logger.Warn("short code collision, retrying", "attempt", attempt+1)
	}
	return "", fmt.Errorf("exhausted %d short code attempts", maxShortCodeAttempts)
}

func issuedView(token *domain.PaymentToken) *IssuedToken {
	return &IssuedToken{
		TokenID:   token.TokenID,
		ShortCode: token.ShortCode,
		Signature: token.Signature,
		OrderID:   token.OrderID,
		IssuedAt:  token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
	}
}
