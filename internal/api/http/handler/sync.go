package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mentorsync/internal/apperrors"
	"mentorsync/internal/model"
)

type DispatchService interface {
	Dispatch(ctx context.Context, limit int) model.DispatchResult
	Replay(ctx context.Context, id uuid.UUID) (*model.OutboxItem, error)
	List(ctx context.Context, status model.OutboxStatus, limit int) ([]model.OutboxItem, error)
}

type dispatchQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

type SyncHandler struct {
	BaseHandler

	log *zap.Logger
	svc DispatchService
}

func NewSyncHandler(log *zap.Logger, svc DispatchService) *SyncHandler {
	return &SyncHandler{
		log: log,
		svc: svc,
	}
}

// Dispatch serves GET /sync/dispatch for the periodic trigger and drains one
// outbox batch. Per item failures are reported in the body, never as an
// error status.
func (h *SyncHandler) Dispatch(c *gin.Context) {
	var q dispatchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusInvalidInput,
			Message: err.Error(),
		})

		return
	}

	c.JSON(http.StatusOK, h.svc.Dispatch(c.Request.Context(), q.Limit))
}

// ListOutbox serves GET /sync/outbox, newest items first.
func (h *SyncHandler) ListOutbox(c *gin.Context) {
	var q model.OutboxQueryParams
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusInvalidInput,
			Message: err.Error(),
		})

		return
	}

	items, err := h.svc.List(c.Request.Context(), model.OutboxStatus(q.Status), q.Limit)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, ResponseWithMessage{
				Status:  StatusInvalidInput,
				Message: err.Error(),
			})

			return
		}

		h.log.Error("failed to list outbox", zap.Error(err))

		c.JSON(http.StatusInternalServerError, ResponseWithMessage{
			Status:  StatusInternalError,
			Message: "failed to list outbox items",
		})

		return
	}

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   items,
	})
}

// ReplayOutboxItem serves POST /sync/outbox/:id/replay and moves a failed
// item back to pending.
func (h *SyncHandler) ReplayOutboxItem(c *gin.Context) {
	id, ok := h.PathID(c)
	if !ok {
		return
	}

	item, err := h.svc.Replay(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrOutboxItemNotFound):
			c.JSON(http.StatusNotFound, ResponseWithMessage{
				Status:  StatusErr,
				Message: err.Error(),
			})
		case errors.Is(err, apperrors.ErrOutboxItemNotFailed):
			c.JSON(http.StatusConflict, ResponseWithMessage{
				Status:  StatusErr,
				Message: err.Error(),
			})
		default:
			h.log.Error("failed to replay outbox item", zap.String("item_id", id.String()), zap.Error(err))

			c.JSON(http.StatusInternalServerError, ResponseWithMessage{
				Status:  StatusInternalError,
				Message: "failed to replay outbox item",
			})
		}

		return
	}

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   item,
	})
}
