package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/ratelimit"
)

func (e *testEnv) newConfirmer(limiter ratelimit.Limiter) *PaymentConfirmer {
	return NewPaymentConfirmer(e.tokens, e.orders, e.audit, limiter, e.logger)
}

func confirmReq(orderID uint, tokenID, deviceID string, userID uint) ConfirmRequest {
	return ConfirmRequest{
		OrderID:        orderID,
		TokenID:        tokenID,
		DeviceID:       deviceID,
		UserID:         &userID,
		PaymentMethod:  "qr_mobile",
		AmountReceived: decimal.NewFromFloat(18.75),
	}
}

func TestConfirmSuccess(t *testing.T) {
	env := newTestEnv(t)
	issuer := env.newIssuer(5 * time.Minute)
	confirmer := env.newConfirmer(allowAll())
	order := env.createOrder(t, "ORD-20", domain.OrderStatusPending)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, order.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	res, err := confirmer.Confirm(ctx, confirmReq(order.ID, issued.TokenID, "device-a", 7))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Order.PaidAt == nil || res.Order.PaymentMethod != "qr_mobile" {
		t.Fatalf("payment not recorded on order: %+v", res.Order)
	}
	if res.Order.PaymentTransactionID == "" {
		t.Fatal("expected a generated transaction id")
	}

	token, err := env.tokens.FindByTokenID(ctx, issued.TokenID)
	if err != nil {
		t.Fatalf("reload token: %v", err)
	}
	if !token.Consumed || token.ConsumedByDeviceID != "device-a" {
		t.Fatalf("token not consumed correctly: %+v", token)
	}
	if token.ConsumedByUserID == nil || *token.ConsumedByUserID != 7 {
		t.Fatalf("consuming user not recorded: %+v", token.ConsumedByUserID)
	}

	entry := lastAudit(t, env, order.ID)
	if entry.Action != domain.ScanActionConfirmPayment || entry.Status != domain.ScanStatusSuccess {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
	if entry.PaymentMethod != "qr_mobile" {
		t.Fatalf("payment method missing from audit: %+v", entry)
	}
}

func TestConfirmSecondAttemptReportsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	issuer := env.newIssuer(5 * time.Minute)
	confirmer := env.newConfirmer(allowAll())
	order := env.createOrder(t, "ORD-21", domain.OrderStatusPending)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, order.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := confirmer.Confirm(ctx, confirmReq(order.ID, issued.TokenID, "device-a", 7)); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	_, err = confirmer.Confirm(ctx, confirmReq(order.ID, issued.TokenID, "device-b", 8))
	expectCode(t, err, CodeDuplicate)
	if got := lastAudit(t, env, order.ID).Status; got != domain.ScanStatusDuplicate {
		t.Fatalf("expected DUPLICATE audit status, got %s", got)
	}
}

func TestConfirmConcurrentExactlyOneSuccess(t *testing.T) {
	env := newTestEnv(t)
	issuer := env.newIssuer(5 * time.Minute)
	confirmer := env.newConfirmer(allowAll())
	order := env.createOrder(t, "ORD-22", domain.OrderStatusPending)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, order.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const confirmers = 4
	var wg sync.WaitGroup
	wg.Add(confirmers)
	errs := make([]error, confirmers)
	for i := 0; i < confirmers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			_, errs[idx] = confirmer.Confirm(ctx, confirmReq(order.ID, issued.TokenID, "device", uint(idx+1)))
		}()
	}
	wg.Wait()

	success := 0
	duplicate := 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		default:
			fe, ok := AsFlowError(err)
			if !ok || fe.Code != CodeDuplicate {
				t.Fatalf("unexpected confirm error: %v", err)
			}
			duplicate++
		}
	}
	if success != 1 || duplicate != confirmers-1 {
		t.Fatalf("expected exactly one winning confirm, got success=%d duplicate=%d", success, duplicate)
	}

	entries := env.auditEntries(t, order.ID)
	if len(entries) != confirmers {
		t.Fatalf("expected %d audit entries, got %d", confirmers, len(entries))
	}
}

func TestConfirmExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	issuer := env.newIssuer(5 * time.Minute)
	confirmer := env.newConfirmer(allowAll())
	order := env.createOrder(t, "ORD-23", domain.OrderStatusPending)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, order.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	confirmer.now = func() time.Time { return issued.ExpiresAt.Add(time.Second) }
	_, err = confirmer.Confirm(ctx, confirmReq(order.ID, issued.TokenID, "device-a", 7))
	expectCode(t, err, CodeExpired)

	token, err := env.tokens.FindByTokenID(ctx, issued.TokenID)
	if err != nil {
		t.Fatalf("reload token: %v", err)
	}
	if token.Consumed {
		t.Fatal("expired confirm must not consume the token")
	}
}

func TestConfirmUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	confirmer := env.newConfirmer(allowAll())

	_, err := confirmer.Confirm(context.Background(), confirmReq(1, "never-issued", "device-a", 7))
	expectCode(t, err, CodeInvalid)
}

func TestConfirmTokenOrderMismatch(t *testing.T) {
	env := newTestEnv(t)
	issuer := env.newIssuer(5 * time.Minute)
	confirmer := env.newConfirmer(allowAll())
	orderA := env.createOrder(t, "ORD-24", domain.OrderStatusPending)
	orderB := env.createOrder(t, "ORD-25", domain.OrderStatusPending)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, orderA.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = confirmer.Confirm(ctx, confirmReq(orderB.ID, issued.TokenID, "device-a", 7))
	expectCode(t, err, CodeInvalid)

	// A wrongly-addressed confirm must not burn the token.
	token, err := env.tokens.FindByTokenID(ctx, issued.TokenID)
	if err != nil {
		t.Fatalf("reload token: %v", err)
	}
	if token.Consumed {
		t.Fatal("order-mismatch confirm must not consume the token")
	}
}

func TestConfirmAnonymousCallerUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	confirmer := env.newConfirmer(allowAll())

	req := ConfirmRequest{OrderID: 1, TokenID: "tok", DeviceID: "device-a", PaymentMethod: "cash"}
	_, err := confirmer.Confirm(context.Background(), req)
	expectCode(t, err, CodeUnauthorized)

	entries := env.auditEntries(t, 1)
	if len(entries) != 1 || entries[0].Status != domain.ScanStatusUnauthorized {
		t.Fatalf("expected one UNAUTHORIZED audit entry, got %+v", entries)
	}
}

func TestConfirmRateLimited(t *testing.T) {
	env := newTestEnv(t)
	confirmer := env.newConfirmer(denyLimiter{retryAfter: time.Second})

	_, err := confirmer.Confirm(context.Background(), confirmReq(1, "tok", "device-a", 7))
	fe := expectCode(t, err, CodeRateLimited)
	if fe.RetryAfter != time.Second {
		t.Fatalf("expected retry-after surfaced, got %v", fe.RetryAfter)
	}
}

func TestConfirmKeepsClaimWhenOrderUpdateFails(t *testing.T) {
	env := newTestEnv(t)
	issuer := env.newIssuer(5 * time.Minute)
	confirmer := env.newConfirmer(allowAll())
	order := env.createOrder(t, "ORD-26", domain.OrderStatusPending)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, order.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Pay the order out of band so the delegated payment recording fails
	// after the claim succeeds.
	if err := env.db.Model(&domain.Order{}).Where("id = ?", order.ID).
		Update("paid_at", time.Now().UTC()).Error; err != nil {
		t.Fatalf("prepay order: %v", err)
	}

	_, err = confirmer.Confirm(ctx, confirmReq(order.ID, issued.TokenID, "device-a", 7))
	expectCode(t, err, CodeConfirmationFailed)

	// The claim is deliberately not rolled back; this is a reconciliation
	// case, not a retry case.
	token, err := env.tokens.FindByTokenID(ctx, issued.TokenID)
	if err != nil {
		t.Fatalf("reload token: %v", err)
	}
	if !token.Consumed {
		t.Fatal("claim must survive a post-claim order update failure")
	}
	if got := lastAudit(t, env, order.ID).Status; got != domain.ScanStatusFailed {
		t.Fatalf("expected FAILED audit status, got %s", got)
	}
}
