package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mentorsync/internal/apperrors"
	"mentorsync/internal/model"
)

const DefaultMaxWebhookBody = 1 << 20

type WebhookService interface {
	Handle(ctx context.Context, body []byte, signature string) (model.WebhookResult, error)
}

type WebhookHandler struct {
	BaseHandler

	log             *zap.Logger
	svc             WebhookService
	signatureHeader string
	maxBody         int64
}

func NewWebhookHandler(log *zap.Logger, svc WebhookService, signatureHeader string, maxBody int64) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxWebhookBody
	}

	return &WebhookHandler{
		log:             log,
		svc:             svc,
		signatureHeader: signatureHeader,
		maxBody:         maxBody,
	}
}

// Receive serves POST /webhooks/crm, the CRM change notification. The body
// is verified against the signature header before it is parsed.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ResponseWithMessage{
				Status:  StatusErr,
				Message: apperrors.ErrPayloadTooLarge.Error(),
			})

			return
		}

		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusInvalidInput,
			Message: "failed to read body",
		})

		return
	}

	res, err := h.svc.Handle(c.Request.Context(), body, c.GetHeader(h.signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidSignature):
			h.log.Warn("webhook rejected", zap.String("client_ip", c.ClientIP()), zap.Error(err))

			c.JSON(http.StatusUnauthorized, ResponseWithMessage{
				Status:  StatusNotPermitted,
				Message: "invalid signature",
			})
		case errors.Is(err, apperrors.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, ResponseWithMessage{
				Status:  StatusInvalidInput,
				Message: err.Error(),
			})
		default:
			h.log.Error("webhook processing failed", zap.Error(err))

			c.JSON(http.StatusInternalServerError, ResponseWithMessage{
				Status:  StatusInternalError,
				Message: "failed to process notification",
			})
		}

		return
	}

	c.JSON(http.StatusOK, res)
}
