package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mentorsync/internal/model"
)

type HealthService interface {
	Check(ctx context.Context) model.HealthReport
}

type HealthHandler struct {
	BaseHandler

	log *zap.Logger
	svc HealthService
}

func NewHealthHandler(log *zap.Logger, svc HealthService) *HealthHandler {
	return &HealthHandler{
		BaseHandler: BaseHandler{},
		log:         log,
		svc:         svc,
	}
}

// Ping serves GET /health/ping, the liveness check.
func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, ResponseWithMessage{
		Status:  StatusSuccess,
		Message: "pong",
	})
}

// Health serves GET /health. It answers 503 only when postgres is down; a
// failing optional component degrades the report.
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.svc.Check(c.Request.Context())

	code := http.StatusOK
	status := StatusOK

	if report.Status == model.HealthDown {
		code = http.StatusServiceUnavailable
		status = StatusNotAvailable
	}

	c.JSON(code, ResponseWithData{
		Status: status,
		Data:   report,
	})
}
