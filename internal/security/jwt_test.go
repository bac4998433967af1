package security

import (
	"strings"
	"testing"
	"time"
)

func TestJWTAccessSignAndParse(t *testing.T) {
	mgr := NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	access, err := mgr.SignAccessToken(42, []string{"operator"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := mgr.ParseAccessToken(access)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "42" || claims.TokenType != "access" {
		t.Fatalf("unexpected access claims: %+v", claims)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Fatalf("unexpected user id %d err=%v", id, err)
	}
	if !claims.HasRole("operator") || claims.HasRole("admin") {
		t.Fatalf("unexpected roles: %+v", claims.Roles)
	}
}

func TestJWTRejectsWrongSecretAndExpired(t *testing.T) {
	mgr := NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	other := NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz654321")

	token, err := mgr.SignAccessToken(7, nil, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.ParseAccessToken(token); err == nil {
		t.Fatal("expected wrong-secret token to fail parse")
	}

	expired, err := mgr.SignAccessToken(7, nil, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.ParseAccessToken(expired); err == nil {
		t.Fatal("expected expired token to fail parse")
	}
}

func FuzzParseAccessTokenRobustness(f *testing.F) {
	mgr := NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	valid, _ := mgr.SignAccessToken(42, []string{"operator"}, time.Minute)

	f.Add(valid)
	f.Add("")
	f.Add("not-a-jwt")
	f.Add("a.b.c")
	f.Add(strings.Repeat("a", 8192))

	f.Fuzz(func(t *testing.T, raw string) {
		if len(raw) > 16384 {
			raw = raw[:16384]
		}
		claims, err := mgr.ParseAccessToken(raw)
		if err == nil {
			if claims == nil {
				t.Fatal("expected non-nil claims on successful parse")
			}
			if claims.TokenType != "access" {
				t.Fatalf("unexpected token type: %q", claims.TokenType)
			}
			if claims.Subject == "" {
				t.Fatal("expected non-empty subject on successful parse")
			}
		}
	})
}
