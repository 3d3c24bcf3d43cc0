package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/chungtau/mti-gateway/internal/auth"
)

const (
	MerchantIDKey = "merchant_id"
	ClaimsKey     = "claims"

	// AccessTokenParam lets EventSource clients, which cannot set headers,
	// authenticate the SSE stream.
	AccessTokenParam = "access_token"
)

// Auth middleware validates HS256 merchant tokens from the Authorization
// header or the access_token query parameter.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query(AccessTokenParam)
		if header := c.GetHeader("Authorization"); header != "" {
			var ok bool
			tokenString, ok = auth.BearerToken(header)
			if !ok {
				abortUnauthorized(c, "Invalid authorization format. Use: Bearer <token>")
				return
			}
		}
		if tokenString == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}

		merchantID, claims, err := auth.Parse(jwtSecret, tokenString)
		if errors.Is(err, auth.ErrMissingMerchant) {
			abortUnauthorized(c, "Token missing merchant claim")
			return
		}
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		// Downstream handlers scope every read and write to this merchant
		c.Set(MerchantIDKey, merchantID)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}

// GetMerchantID retrieves the authenticated merchant from the gin context
func GetMerchantID(c *gin.Context) string {
	if merchantID, exists := c.Get(MerchantIDKey); exists {
		return merchantID.(string)
	}
	return ""
}

// GetClaims retrieves the JWT claims from the gin context
func GetClaims(c *gin.Context) jwt.MapClaims {
	if claims, exists := c.Get(ClaimsKey); exists {
		return claims.(jwt.MapClaims)
	}
	return nil
}
