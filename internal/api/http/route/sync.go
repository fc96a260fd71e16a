package route

import (
	"github.com/gin-gonic/gin"
)

type SyncHandler interface {
	Dispatch(c *gin.Context)
	ListOutbox(c *gin.Context)
	ReplayOutboxItem(c *gin.Context)
}

func RegisterSync(g *gin.RouterGroup, h SyncHandler) {
	g.GET("/dispatch", h.Dispatch)
	g.GET("/outbox", h.ListOutbox)
	g.POST("/outbox/:id/replay", h.ReplayOutboxItem)
}
