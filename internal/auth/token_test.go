package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func TestIssueAndParse(t *testing.T) {
	token, exp, err := Issue(secret, "MERCH_001", "user-42", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expected future expiry, got %v", exp)
	}

	merchantID, claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if merchantID != "MERCH_001" || claims["sub"] != "user-42" {
		t.Errorf("unexpected merchant %q claims %v", merchantID, claims)
	}
}

func TestParse_FallsBackToSubject(t *testing.T) {
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "MERCH_SUB",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))

	merchantID, _, err := Parse(secret, signed)
	if err != nil || merchantID != "MERCH_SUB" {
		t.Errorf("expected fallback to sub, got %q (%v)", merchantID, err)
	}
}

func TestParse_Rejects(t *testing.T) {
	expired, _, _ := Issue(secret, "MERCH_001", "", time.Hour, time.Now().Add(-2*time.Hour))
	wrongKey, _, _ := Issue("other-secret", "MERCH_001", "", time.Hour, time.Now())
	noMerchant, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, ErrInvalidToken},
		{"wrong key", wrongKey, ErrInvalidToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"no merchant", noMerchant, ErrMissingMerchant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Parse(secret, tt.token); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Errorf("expected abc, got %q", tok)
	}
	if tok, ok := BearerToken("bearer  xyz"); !ok || tok != "xyz" {
		t.Errorf("expected case-insensitive scheme, got %q", tok)
	}
	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer  "} {
		if _, ok := BearerToken(h); ok {
			t.Errorf("expected %q to be rejected", h)
		}
	}
}
