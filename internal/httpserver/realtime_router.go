package httpserver

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"researchhub/internal/realtime"
)

// NewRealtimeRouter builds the fan-out service's router. The /internal
// ingest endpoint is unauthenticated and must only be reachable from the
// service network.
func NewRealtimeRouter(server *realtime.Server, hub *realtime.Hub, jwtSecret string, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(RequestLogMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/readyz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ready", "subscribers": hub.SubscriberCount()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/internal/events", server.IngestEvent)

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/events", server.Stream)
		auth.POST("/rooms/:id/typing/start", server.TypingStart)
		auth.POST("/rooms/:id/typing/stop", server.TypingStop)
	}

	return &Router{Engine: r}
}
