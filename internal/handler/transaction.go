package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/chungtau/mti-gateway/internal/middleware"
	"github.com/chungtau/mti-gateway/internal/model"
)

// TransactionService is implemented by *processor.Processor
type TransactionService interface {
	Submit(ctx context.Context, req model.SubmitRequest) (string, error)
	Get(ctx context.Context, merchantID, id string) (*model.Transaction, error)
	List(ctx context.Context, merchantID string, limit int) ([]*model.Transaction, error)
}

// TransactionHandler handles transaction-related endpoints
type TransactionHandler struct {
	svc TransactionService
}

func NewTransactionHandler(svc TransactionService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

// SubmitTransactionRequest is the body of POST /v1/transactions. The merchant
// comes from the token, never from the body.
type SubmitTransactionRequest struct {
	CardHolderName string          `json:"cardHolderName"`
	CardNumber     string          `json:"cardNumber"`
	Expiry         string          `json:"expiry"`
	CVV            string          `json:"cvv"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	ProtocolID     string          `json:"protocolId"`
	Protocol       string          `json:"protocol"` // terminal label, used when protocolId is empty
	AuthCode       string          `json:"authCode"`
	Online         bool            `json:"online"`
}

// SubmitTransactionResponse is returned once the 0100 stage has been recorded
type SubmitTransactionResponse struct {
	Success       bool         `json:"success"`
	TransactionID string       `json:"transactionId"`
	Status        model.Status `json:"status"`
}

// Submit handles POST /v1/transactions
func (h *TransactionHandler) Submit(c *gin.Context) {
	var req SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_REQUEST",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	protocol := req.ProtocolID
	if protocol == "" {
		protocol = req.Protocol
	}

	id, err := h.svc.Submit(c.Request.Context(), model.SubmitRequest{
		MerchantID:     middleware.GetMerchantID(c),
		CardHolderName: req.CardHolderName,
		CardNumber:     req.CardNumber,
		Expiry:         req.Expiry,
		CVV:            req.CVV,
		Amount:         req.Amount,
		Currency:       req.Currency,
		ProtocolID:     protocol,
		AuthCode:       req.AuthCode,
		Online:         req.Online,
	})
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("transaction rejected")
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitTransactionResponse{
		Success:       true,
		TransactionID: id,
		Status:        model.StatusProcessing,
	})
}

// Get handles GET /v1/transactions/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	tx, err := h.svc.Get(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// List handles GET /v1/transactions?limit=N
func (h *TransactionHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_ARGUMENT",
				"message": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	txs, err := h.svc.List(c.Request.Context(), middleware.GetMerchantID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}
