package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// respondError транслирует доменную ошибку в HTTP-ответ
func respondError(c *gin.Context, err error) {
	var billingErr *domain.BillingError
	if errors.As(err, &billingErr) {
		c.JSON(billingErr.HTTPStatus, gin.H{
			"code":  billingErr.Code,
			"error": billingErr.Message,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"code":  "INTERNAL_ERROR",
		"error": "internal server error",
	})
}
