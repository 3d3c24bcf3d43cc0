// Package auth issues and verifies the HS256 merchant tokens accepted by the
// HTTP and gRPC surfaces.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MerchantClaim carries the merchant a subscriber or submitter acts for.
const MerchantClaim = "merchant_id"

var (
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrMissingMerchant = errors.New("token missing merchant claim")
)

// Issue signs a token for merchantID. The subject defaults to the merchant.
func Issue(secret, merchantID, subject string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if subject == "" {
		subject = merchantID
	}
	expiresAt := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":         subject,
		MerchantClaim: merchantID,
		"iat":         now.Unix(),
		"exp":         expiresAt.Unix(),
		"nbf":         now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies tokenString and returns the merchant it belongs to. Tokens
// without a merchant_id claim fall back to sub.
func Parse(secret, tokenString string) (string, jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Only HMAC signing is accepted
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, ErrInvalidToken
	}

	merchantID, _ := claims[MerchantClaim].(string)
	if merchantID == "" {
		merchantID, _ = claims["sub"].(string)
	}
	if merchantID == "" {
		return "", nil, ErrMissingMerchant
	}
	return merchantID, claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
