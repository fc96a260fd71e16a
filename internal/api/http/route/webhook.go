package route

import (
	"github.com/gin-gonic/gin"
)

type WebhookHandler interface {
	Receive(c *gin.Context)
}

// RegisterWebhooks mounts the CRM receiver. It is authenticated by body
// signature, not by the shared secret.
func RegisterWebhooks(g *gin.RouterGroup, h WebhookHandler) {
	g.POST("/crm", h.Receive)
}
