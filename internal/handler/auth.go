package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chungtau/mti-gateway/internal/auth"
)

const (
	defaultDevMerchant = "MERCH_BANK_001"
	defaultDevTTL      = time.Hour
	maxDevTTL          = 24 * time.Hour
)

// AuthHandler issues merchant tokens for local testing
type AuthHandler struct {
	jwtSecret string
	devMode   bool
	now       func() time.Time
}

func NewAuthHandler(jwtSecret string, devMode bool) *AuthHandler {
	return &AuthHandler{jwtSecret: jwtSecret, devMode: devMode, now: time.Now}
}

// DevTokenRequest: every field is optional
type DevTokenRequest struct {
	MerchantID string `json:"merchant_id"`
	Subject    string `json:"subject"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type DevTokenResponse struct {
	Token      string `json:"token"`
	TokenType  string `json:"token_type"`
	ExpiresAt  string `json:"expires_at"`
	ExpiresIn  int    `json:"expires_in"`
	MerchantID string `json:"merchant_id"`
	Subject    string `json:"subject"`
}

// GenerateDevToken handles POST /auth/dev/token. The router only mounts it in
// DEV_MODE; the handler refuses on its own as well.
func (h *AuthHandler) GenerateDevToken(c *gin.Context) {
	if !h.devMode {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "Endpoint not available"})
		return
	}

	var req DevTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	if req.MerchantID == "" {
		req.MerchantID = defaultDevMerchant
	}
	if req.Subject == "" {
		req.Subject = "dev-" + uuid.NewString()
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	switch {
	case ttl <= 0:
		ttl = defaultDevTTL
	case ttl > maxDevTTL:
		ttl = maxDevTTL
	}

	token, expiresAt, err := auth.Issue(h.jwtSecret, req.MerchantID, req.Subject, ttl, h.now())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, DevTokenResponse{
		Token:      token,
		TokenType:  "Bearer",
		ExpiresAt:  expiresAt.UTC().Format(time.RFC3339),
		ExpiresIn:  int(ttl.Seconds()),
		MerchantID: req.MerchantID,
		Subject:    req.Subject,
	})
}
