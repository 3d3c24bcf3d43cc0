package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chungtau/mti-gateway/internal/model"
)

type APIError struct {
	HTTPStatus int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// ToAPIError converts a domain error to an API error with appropriate HTTP status
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var verr *model.ValidationError
	var perr *model.PersistenceError
	var derr *model.DeliveryError

	switch {
	case errors.As(err, &verr):
		return &APIError{
			HTTPStatus: http.StatusBadRequest,
			Code:       "VALIDATION_ERROR",
			Message:    "Transaction request failed validation",
			Fields:     verr.Fields,
		}

	case errors.Is(err, model.ErrTransactionNotFound):
		return &APIError{
			HTTPStatus: http.StatusNotFound,
			Code:       "NOT_FOUND",
			Message:    "Transaction not found",
		}

	case errors.Is(err, model.ErrMerchantNotFound):
		return &APIError{
			HTTPStatus: http.StatusNotFound,
			Code:       "NOT_FOUND",
			Message:    "Merchant not found",
		}

	case errors.As(err, &perr):
		return &APIError{
			HTTPStatus: http.StatusServiceUnavailable,
			Code:       "PERSISTENCE_UNAVAILABLE",
			Message:    "Transaction store unavailable. Please retry.",
		}

	case errors.As(err, &derr):
		return &APIError{
			HTTPStatus: http.StatusServiceUnavailable,
			Code:       "DELIVERY_UNAVAILABLE",
			Message:    "Event delivery unavailable. Please retry.",
		}

	case errors.Is(err, model.ErrInvalidTransition):
		return &APIError{
			HTTPStatus: http.StatusConflict,
			Code:       "INVALID_TRANSITION",
			Message:    err.Error(),
		}

	default:
		return &APIError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "Internal server error",
		}
	}
}

func writeError(c *gin.Context, err error) {
	apiErr := ToAPIError(err)
	c.JSON(apiErr.HTTPStatus, apiErr)
}
