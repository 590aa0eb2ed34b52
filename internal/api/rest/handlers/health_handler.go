package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler проверки живости сервиса
type HealthHandler struct{}

// NewHealthHandler создает новый обработчик health-проверок
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Health возвращает состояние сервиса
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "billing"})
}
