package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	StatusErr           = "error"
	StatusSuccess       = "success"
	StatusNotAvailable  = "not available"
	StatusNotPermitted  = "not permitted"
	StatusOK            = "ok"
	StatusInvalidInput  = "invalid_input"
	StatusInternalError = "internal_error"
)

type BaseHandler struct{}

type idPathParam struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// PathID binds and parses the :id path parameter. On failure it writes a 400
// response and returns false.
func (h *BaseHandler) PathID(c *gin.Context) (uuid.UUID, bool) {
	var uri idPathParam
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusInvalidInput,
			Message: err.Error(),
		})

		return uuid.Nil, false
	}

	id, err := uuid.Parse(uri.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusInvalidInput,
			Message: "invalid id format",
		})

		return uuid.Nil, false
	}

	return id, true
}

// ResponseWithData is the common response carrying a payload.
type ResponseWithData struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// ResponseWithMessage is the common response carrying only a message.
type ResponseWithMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NoMethod(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, ResponseWithMessage{
		Status:  StatusNotAvailable,
		Message: "method not allowed on this endpoint",
	})
}

func NoRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, ResponseWithMessage{
		Status:  StatusNotAvailable,
		Message: "page not found",
	})
}
