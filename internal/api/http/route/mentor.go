package route

import (
	"github.com/gin-gonic/gin"
)

type MentorHandler interface {
	UpdateMentor(c *gin.Context)
	SyncStatus(c *gin.Context)
}

func RegisterMentors(g *gin.RouterGroup, h MentorHandler) {
	g.PATCH("/:id", h.UpdateMentor)
	g.GET("/:id/sync", h.SyncStatus)
}
