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

type ProfileService interface {
	UpdateProfile(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.Mentor, error)
}

type SyncInspector interface {
	Inspect(ctx context.Context, mentorID uuid.UUID) (*model.SyncStatus, error)
}

type MentorHandler struct {
	BaseHandler

	log       *zap.Logger
	svc       ProfileService
	inspector SyncInspector
}

func NewMentorHandler(log *zap.Logger, svc ProfileService, inspector SyncInspector) *MentorHandler {
	return &MentorHandler{
		log:       log,
		svc:       svc,
		inspector: inspector,
	}
}

// UpdateMentor serves PATCH /mentors/:id, a partial profile update. The
// response does not depend on the outcome of the CRM push.
func (h *MentorHandler) UpdateMentor(c *gin.Context) {
	id, ok := h.PathID(c)
	if !ok {
		return
	}

	var req model.MentorUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusInvalidInput,
			Message: err.Error(),
		})

		return
	}

	mentor, err := h.svc.UpdateProfile(c.Request.Context(), id, req.ProfilePatch)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrEmptyPatch):
			c.JSON(http.StatusBadRequest, ResponseWithMessage{
				Status:  StatusInvalidInput,
				Message: err.Error(),
			})
		case errors.Is(err, apperrors.ErrMentorNotFound):
			c.JSON(http.StatusNotFound, ResponseWithMessage{
				Status:  StatusErr,
				Message: "mentor not found",
			})
		default:
			h.log.Error("failed to update mentor", zap.String("mentor_id", id.String()), zap.Error(err))

			c.JSON(http.StatusInternalServerError, ResponseWithMessage{
				Status:  StatusInternalError,
				Message: "failed to update mentor",
			})
		}

		return
	}

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   mentor,
	})
}

// SyncStatus serves GET /mentors/:id/sync: local and synced versions plus the
// columns where the CRM record has drifted from the local profile.
func (h *MentorHandler) SyncStatus(c *gin.Context) {
	id, ok := h.PathID(c)
	if !ok {
		return
	}

	status, err := h.inspector.Inspect(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrMentorNotFound) {
			c.JSON(http.StatusNotFound, ResponseWithMessage{
				Status:  StatusErr,
				Message: "mentor not found",
			})

			return
		}

		h.log.Warn("failed to inspect mentor sync state", zap.String("mentor_id", id.String()), zap.Error(err))

		c.JSON(http.StatusBadGateway, ResponseWithMessage{
			Status:  StatusNotAvailable,
			Message: "failed to read crm record",
		})

		return
	}

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   status,
	})
}
