package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chungtau/mti-gateway/internal/validation"
)

// ListProtocols handles GET /v1/protocols
func ListProtocols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"protocols":         validation.Protocols(),
		"defaultCodeLength": validation.DefaultCodeLength,
	})
}
