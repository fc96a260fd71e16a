package route

import (
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mentorsync/internal/api/http/handler"
	"mentorsync/internal/api/http/middleware"
	"mentorsync/internal/config"
)

func SetupRouter(
	log *zap.Logger,
	cfg *config.Config,
	healthHdl HealthHandler,
	syncHdl SyncHandler,
	webhookHdl WebhookHandler,
	mentorHdl MentorHandler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard

	router := gin.New()
	router.Use(gin.Recovery())

	// middleware
	router.Use(middleware.Logger(log))
	router.Use(middleware.RequestTimeout(cfg.HTTPServer.Timeout.Request))
	router.Use(middleware.CORS(cfg.HTTPServer.CORS, cfg.CRM.SignatureHeader))

	secretMiddleware := middleware.SharedSecret(log, cfg.Sync.CronSecret, cfg.IsProduction())

	router.HandleMethodNotAllowed = true
	router.NoMethod(handler.NoMethod)
	router.NoRoute(handler.NoRoute)

	basePath := router.Group(cfg.HTTPServer.BasePath)

	healthPath := basePath.Group("/health")
	RegisterHealth(healthPath, healthHdl)

	syncPath := basePath.Group("/sync", secretMiddleware)
	RegisterSync(syncPath, syncHdl)

	webhookPath := basePath.Group("/webhooks")
	RegisterWebhooks(webhookPath, webhookHdl)

	mentorPath := basePath.Group("/mentors", secretMiddleware)
	RegisterMentors(mentorPath, mentorHdl)

	return router
}
