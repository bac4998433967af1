package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
)

func newToken(orderID uint, tokenID, shortCode string, expiresAt time.Time) *domain.PaymentToken {
	return &domain.PaymentToken{
		TokenID:   tokenID,
		ShortCode: shortCode,
		Signature: "sig-" + tokenID,
		OrderID:   orderID,
		IssuedAt:  expiresAt.Add(-5 * time.Minute),
		ExpiresAt: expiresAt,
	}
}

func TestPaymentTokenLookupByTokenIDAndShortCode(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPaymentTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	tok := newToken(1, "tok-a", "ABC234", now.Add(5*time.Minute))
	if err := repo.Create(ctx, tok); err != nil {
		t.Fatalf("create token: %v", err)
	}

	byID, err := repo.FindByTokenID(ctx, "tok-a")
	if err != nil {
		t.Fatalf("find by token id: %v", err)
	}
	byCode, err := repo.FindByShortCode(ctx, "ABC234")
	if err != nil {
		t.Fatalf("find by short code: %v", err)
	}
	if byID.ID != byCode.ID {
		t.Fatalf("expected both lookups to resolve the same record, got %d and %d", byID.ID, byCode.ID)
	}

	if _, err := repo.FindByTokenID(ctx, "missing"); !errors.Is(err, ErrPaymentTokenNotFound) {
		t.Fatalf("expected not-found for unknown token id, got %v", err)
	}
	if _, err := repo.FindByShortCode(ctx, "ZZZZZZ"); !errors.Is(err, ErrPaymentTokenNotFound) {
		t.Fatalf("expected not-found for unknown short code, got %v", err)
	}
}

func TestPaymentTokenShortCodeLookupPrefersNewest(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPaymentTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	old := newToken(1, "tok-old", "SAME99", now.Add(-time.Hour))
	old.IssuedAt = now.Add(-2 * time.Hour)
	fresh := newToken(2, "tok-new", "SAME99", now.Add(5*time.Minute))
	fresh.IssuedAt = now
	for _, tok := range []*domain.PaymentToken{old, fresh} {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("create token %s: %v", tok.TokenID, err)
		}
	}

	got, err := repo.FindByShortCode(ctx, "SAME99")
	if err != nil {
		t.Fatalf("find by short code: %v", err)
	}
	if got.TokenID != "tok-new" {
		t.Fatalf("expected newest token for reused short code, got %s", got.TokenID)
	}
}

func TestPaymentTokenInvalidateActiveByOrderID(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPaymentTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	active := newToken(10, "tok-active", "AAA111", now.Add(5*time.Minute))
	otherOrder := newToken(11, "tok-other", "BBB222", now.Add(5*time.Minute))
	for _, tok := range []*domain.PaymentToken{active, otherOrder} {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("create token %s: %v", tok.TokenID, err)
		}
	}

	if err := repo.InvalidateActiveByOrderID(ctx, 10, now); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if _, err := repo.FindActiveByOrderID(ctx, 10, now); !errors.Is(err, ErrPaymentTokenNotFound) {
		t.Fatalf("expected invalidated token to be inactive, got %v", err)
	}
	still, err := repo.FindActiveByOrderID(ctx, 11, now)
	if err != nil {
		t.Fatalf("expected other order token untouched: %v", err)
	}
	if still.TokenID != "tok-other" {
		t.Fatalf("unexpected token returned: %+v", still)
	}

	// The invalidated token still exists; it was expired, not consumed.
	dead, err := repo.FindByTokenID(ctx, "tok-active")
	if err != nil {
		t.Fatalf("find invalidated token: %v", err)
	}
	if dead.Consumed {
		t.Fatal("invalidation must not mark the token consumed")
	}
	if !dead.Expired(now.Add(time.Second)) {
		t.Fatalf("expected invalidated token to be expired, expires_at=%v", dead.ExpiresAt)
	}
}

func TestPaymentTokenShortCodeInUse(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPaymentTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	live := newToken(1, "tok-live", "LIVE22", now.Add(5*time.Minute))
	dead := newToken(2, "tok-dead", "DEAD33", now.Add(-time.Minute))
	if err := repo.Create(ctx, live); err != nil {
		t.Fatalf("create live: %v", err)
	}
	if err := repo.Create(ctx, dead); err != nil {
		t.Fatalf("create dead: %v", err)
	}

	inUse, err := repo.ShortCodeInUse(ctx, "LIVE22", now)
	if err != nil {
		t.Fatalf("short code in use: %v", err)
	}
	if !inUse {
		t.Fatal("expected live short code to be in use")
	}
	inUse, err = repo.ShortCodeInUse(ctx, "DEAD33", now)
	if err != nil {
		t.Fatalf("short code in use: %v", err)
	}
	if inUse {
		t.Fatal("expected expired short code to be reusable")
	}
}

func TestPaymentTokenClaimExactlyOnce(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPaymentTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	userID := uint(7)

	tok := newToken(20, "tok-claim", "CLM444", now.Add(5*time.Minute))
	if err := repo.Create(ctx, tok); err != nil {
		t.Fatalf("create token: %v", err)
	}

	if err := repo.Claim(ctx, "tok-claim", "device-a", &userID, now); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := repo.Claim(ctx, "tok-claim", "device-b", &userID, now.Add(time.Second)); !errors.Is(err, ErrPaymentTokenConsumed) {
		t.Fatalf("expected second claim to report consumed, got %v", err)
	}
	if err := repo.Claim(ctx, "tok-nope", "device-a", &userID, now); !errors.Is(err, ErrPaymentTokenNotFound) {
		t.Fatalf("expected claim on unknown token to report not-found, got %v", err)
	}

	claimed, err := repo.FindByTokenID(ctx, "tok-claim")
	if err != nil {
		t.Fatalf("reload claimed token: %v", err)
	}
	if !claimed.Consumed || claimed.ConsumedAt == nil || claimed.ConsumedByDeviceID != "device-a" {
		t.Fatalf("claim did not persist consumption metadata: %+v", claimed)
	}
	if claimed.ConsumedByUserID == nil || *claimed.ConsumedByUserID != userID {
		t.Fatalf("claim did not persist user id: %+v", claimed.ConsumedByUserID)
	}
}

func TestPaymentTokenClaimConcurrent(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPaymentTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	tok := newToken(30, "tok-race", "RCE555", now.Add(5*time.Minute))
	if err := repo.Create(ctx, tok); err != nil {
		t.Fatalf("create token: %v", err)
	}

	const claimers = 4
	var wg sync.WaitGroup
	wg.Add(claimers)
	errs := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			errs[idx] = repo.Claim(ctx, "tok-race", "device", nil, now)
		}()
	}
	wg.Wait()

	success := 0
	consumed := 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrPaymentTokenConsumed):
			consumed++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if success != 1 || consumed != claimers-1 {
		t.Fatalf("expected exactly one winner, got success=%d consumed=%d errs=%v", success, consumed, errs)
	}
}

func TestPaymentTokenSweepKeepsConsumed(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPaymentTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := newToken(40, "tok-stale", "STL666", now.Add(-48*time.Hour))
	used := newToken(41, "tok-used", "USD777", now.Add(-48*time.Hour))
	fresh := newToken(42, "tok-fresh", "FRS888", now.Add(5*time.Minute))
	for _, tok := range []*domain.PaymentToken{stale, used, fresh} {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("create token %s: %v", tok.TokenID, err)
		}
	}
	if err := repo.Claim(ctx, "tok-used", "device", nil, now.Add(-47*time.Hour)); err != nil {
		t.Fatalf("claim used token: %v", err)
	}

	deleted, err := repo.DeleteExpiredUnconsumed(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one swept token, got %d", deleted)
	}
	if _, err := repo.FindByTokenID(ctx, "tok-stale"); !errors.Is(err, ErrPaymentTokenNotFound) {
		t.Fatalf("expected stale token deleted, got %v", err)
	}
	if _, err := repo.FindByTokenID(ctx, "tok-used"); err != nil {
		t.Fatalf("consumed token must be retained for audit: %v", err)
	}
	if _, err := repo.FindByTokenID(ctx, "tok-fresh"); err != nil {
		t.Fatalf("live token must survive sweep: %v", err)
	}
}
